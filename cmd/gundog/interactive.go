package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"gundog/internal/auth"
	"gundog/internal/engine"
	"gundog/internal/llm"
	"gundog/internal/reconcile"
	"gundog/internal/schema"
	"gundog/internal/session"
	"gundog/internal/store"
)

// stack is everything a scenario run needs, wired from config.
type stack struct {
	local *store.LocalStore
	snaps store.SnapshotStore
	authn *auth.Authenticator
	llm   llm.Client
}

func buildStack(ctx context.Context, needLLM bool) (*stack, error) {
	local, err := store.NewLocalStore(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	s := &stack{
		local: local,
		snaps: local,
		authn: auth.New(local, cfg.Auth.JWTSecret, cfg.TokenTTL()),
	}

	if cfg.Store.Driver == "redis" {
		rs, err := store.NewRedisStore(ctx, cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			local.Close()
			return nil, err
		}
		s.snaps = rs
	}

	if needLLM {
		if err := cfg.Validate(); err != nil {
			s.close()
			return nil, err
		}
		gc := llm.DefaultGeminiConfig(cfg.LLM.APIKey)
		gc.Model = cfg.LLM.Model
		gc.Temperature = float32(cfg.LLM.Temperature)
		gc.Timeout = cfg.LLMTimeout()
		client, err := llm.NewGeminiClient(ctx, gc)
		if err != nil {
			s.close()
			return nil, err
		}
		s.llm = client
	}
	return s, nil
}

func (s *stack) close() {
	if rs, ok := s.snaps.(*store.RedisStore); ok {
		rs.Close()
	}
	s.local.Close()
}

func readLine(reader *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func readPassword(label string) (string, error) {
	fmt.Print(label)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// login resolves the active operator, prompting for credentials unless the
// --user flag named one.
func login(ctx context.Context, s *stack, reader *bufio.Reader) (string, error) {
	if identity != "" {
		return identity, nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		username, err := readLine(reader, "Username: ")
		if err != nil {
			return "", err
		}
		password, err := readPassword("Password: ")
		if err != nil {
			return "", err
		}

		status, _, err := s.authn.Verify(ctx, username, password)
		if err != nil {
			return "", err
		}
		switch status {
		case auth.StatusAuthenticated:
			return username, nil
		case auth.StatusUnknown:
			fmt.Println("No such operator. Run 'gundog enlist' to register.")
		default:
			fmt.Println("Password incorrect.")
		}
	}
	return "", errors.New("too many failed login attempts")
}

func runMission(ctx context.Context) error {
	mission, err := schema.LoadMission(cfg.Scenario.MissionPath)
	if err != nil {
		return err
	}

	s, err := buildStack(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	reader := bufio.NewReader(os.Stdin)
	operator, err := login(ctx, s, reader)
	if err != nil {
		return err
	}

	sess := session.New(operator, mission.ID, session.DefaultRoster, mission.InitialLedger())
	exec := engine.NewExecutor(mission, sess, s.llm, s.snaps)
	defer exec.Close()

	resumed, err := exec.Resume(ctx)
	if err != nil {
		fmt.Println("Could not load saved state, starting fresh:", err)
	}
	if resumed {
		fmt.Printf("Session resumed. T-%dm on the clock.\n", sess.Clock())
		replayLog(sess.Log())
	} else {
		fmt.Printf("OPERATION %s // %s\n%s\n\n", strings.ToUpper(mission.ID), mission.Intent.Theater, mission.Intent.Situation)
		outcome, err := exec.Begin(ctx)
		if err != nil {
			return err
		}
		printOutcome(outcome)
	}

	for !sess.Terminal() {
		orders, err := readLine(reader, fmt.Sprintf("[T-%dm] > ", sess.Clock()))
		if err != nil {
			return nil // EOF ends the session, state is saved
		}
		if orders == "" {
			continue
		}
		switch orders {
		case "/quit":
			return nil
		case "/abort":
			if err := exec.Abort(ctx); err != nil {
				fmt.Println("Abort failed:", err)
				continue
			}
			fmt.Println("Operation scrubbed. State wiped.")
			return nil
		}

		outcome, err := exec.Command(ctx, orders)
		if errors.Is(err, llm.ErrBackendUnavailable) {
			fmt.Println("COMMS DOWN. Reissue your order.")
			continue
		}
		if err != nil {
			return err
		}
		printOutcome(outcome)
	}

	fmt.Println("\nMISSION COMPLETE: DEBRIEFING IN PROGRESS")
	fmt.Printf("Final rating: %d (viability %d%%, %d minutes elapsed)\n",
		exec.FinalRating(), sess.Viability(), sess.Elapsed())

	report, err := exec.Debrief(ctx)
	if err != nil {
		fmt.Println("Debrief unavailable:", err)
		return nil
	}
	fmt.Println("\n=== AFTER-ACTION REVIEW ===")
	fmt.Println(report)
	return nil
}

func runAudit(ctx context.Context) error {
	checklist, err := schema.LoadChecklist(cfg.Scenario.ChecklistPath)
	if err != nil {
		return err
	}

	s, err := buildStack(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	reader := bufio.NewReader(os.Stdin)
	operator, err := login(ctx, s, reader)
	if err != nil {
		return err
	}

	sess := session.New(operator, checklist.ID, nil, checklist.InitialLedger())
	exec := engine.NewAuditExecutor(checklist, sess, s.llm, s.snaps)
	defer exec.Close()

	if resumed, err := exec.Resume(ctx); err != nil {
		fmt.Println("Could not load saved state, starting fresh:", err)
	} else if resumed {
		fmt.Println("Audit resumed.")
	}
	printChecklist(checklist, sess)

	for !sess.Terminal() {
		group := exec.ActiveGroup()
		notes, err := readLine(reader, fmt.Sprintf("[%s] > ", group.ID))
		if err != nil {
			return nil
		}
		if notes == "" {
			continue
		}
		if strings.HasPrefix(notes, "/group ") {
			if err := exec.SetActiveGroup(strings.TrimSpace(strings.TrimPrefix(notes, "/group "))); err != nil {
				fmt.Println(err)
			}
			continue
		}
		switch notes {
		case "/quit":
			return nil
		case "/status":
			printChecklist(checklist, sess)
			continue
		case "/abort":
			if err := exec.Abort(ctx); err != nil {
				fmt.Println("Abort failed:", err)
				continue
			}
			fmt.Println("Audit scrubbed. State wiped.")
			return nil
		}

		outcome, err := exec.Command(ctx, notes)
		if errors.Is(err, llm.ErrBackendUnavailable) {
			fmt.Println("Backend unavailable. Repeat your observation.")
			continue
		}
		if err != nil {
			return err
		}
		fmt.Println(outcome.CleanText)
		for _, item := range outcome.ItemsSet {
			fmt.Printf("  ✔ %s\n", item)
		}
		if outcome.ScoreSet != nil {
			fmt.Printf("  readiness %.0f%%\n", *outcome.ScoreSet*100)
		}
	}

	score, max := exec.ReadinessScore()
	fmt.Printf("\nAUDIT COMPLETE. Weighted readiness: %.1f / %.1f\n", score, max)
	return nil
}

func printChecklist(c *schema.Checklist, sess *session.Session) {
	ledger := sess.Ledger()
	for _, cat := range c.Categories {
		fmt.Printf("%s\n", cat.Name)
		for _, g := range cat.Groups {
			fmt.Printf("  %s (%s x%g)\n", g.Name, g.Mode, g.Multiplier)
			for _, it := range g.Items {
				mark := " "
				if ledger[it.Text] {
					mark = "x"
				}
				fmt.Printf("    [%s] %s\n", mark, it.Text)
			}
			if g.Mode == schema.ModeProportional {
				fmt.Printf("    readiness: %.0f%%\n", sess.Score(g.ID)*100)
			}
		}
	}
}

func printOutcome(outcome reconcile.TurnOutcome) {
	for _, d := range outcome.Discoveries {
		fmt.Printf("\n*** RECON UPLINK // %s ***\n%s\n", strings.ToUpper(d.Name), d.Intel)
	}
	if len(outcome.Segments) > 0 {
		for _, unit := range session.DefaultRoster {
			if line, ok := outcome.Segments[unit]; ok {
				fmt.Printf("%s: %s\n", unit, line)
			}
		}
	} else {
		fmt.Println(outcome.CleanText)
	}
	for _, id := range outcome.ObjectivesSet {
		fmt.Printf("  ✔ objective %s complete (+%d efficiency)\n", id, reconcile.EfficiencyBonus)
	}
}

func replayLog(log []session.Message) {
	for _, msg := range log {
		switch msg.Role {
		case session.RoleCommander:
			fmt.Printf("> %s\n", msg.Text)
		default:
			fmt.Println(msg.Text)
		}
	}
}

func runEnlist(ctx context.Context) error {
	s, err := buildStack(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	reader := bufio.NewReader(os.Stdin)
	email, err := readLine(reader, "Email: ")
	if err != nil {
		return err
	}
	username, err := readLine(reader, "Username: ")
	if err != nil {
		return err
	}
	fullName, err := readLine(reader, "Full name: ")
	if err != nil {
		return err
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	hint, err := readLine(reader, "Password hint: ")
	if err != nil {
		return err
	}

	if err := s.authn.Register(ctx, email, username, fullName, password, hint); err != nil {
		return err
	}
	fmt.Printf("Operator %q enlisted with role %s.\n", username, auth.DefaultRole)
	return nil
}

func runRecover(ctx context.Context) error {
	s, err := buildStack(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	reader := bufio.NewReader(os.Stdin)
	email, err := readLine(reader, "Email: ")
	if err != nil {
		return err
	}
	hint, err := s.authn.PasswordHint(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Println("No account for that email.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Hint: %s\n", hint)

	answer, err := readLine(reader, "Reset password now? [y/N]: ")
	if err != nil || !strings.EqualFold(answer, "y") {
		return nil
	}
	username, err := readLine(reader, "Username: ")
	if err != nil {
		return err
	}
	current, err := readPassword("Current password: ")
	if err != nil {
		return err
	}
	next, err := readPassword("New password: ")
	if err != nil {
		return err
	}
	if err := s.authn.ResetPassword(ctx, username, current, next); err != nil {
		return err
	}
	fmt.Println("Password updated.")
	return nil
}
