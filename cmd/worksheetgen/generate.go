package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pavelanni/worksheetgen/internal/api"
	"github.com/pavelanni/worksheetgen/internal/export"
	appI18n "github.com/pavelanni/worksheetgen/internal/i18n"
	"github.com/pavelanni/worksheetgen/internal/model"
	"github.com/pavelanni/worksheetgen/internal/store"
	"github.com/pavelanni/worksheetgen/internal/wizard"
)

// generateParams is the YAML parameters file of the generate command.
type generateParams struct {
	Username string         `yaml:"username"`
	Password string         `yaml:"password"`
	Form     model.FormData `yaml:"form"`
}

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the whole wizard from a parameters file and save the workbook",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("params", "p", "worksheet.yaml", "YAML parameters file")
	f.String("api-username", "", "API username (overrides the parameters file)")
	f.String("api-password", "", "API password (overrides the parameters file)")
	f.StringP("output-dir", "o", ".", "Directory for the workbook")
	addWizardFlags(cmd)
	return cmd
}

func loadParams(path string) (*generateParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var p generateParams
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &p, nil
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := loadParams(v.GetString("params"))
	if err != nil {
		return err
	}
	if u := v.GetString("api-username"); u != "" {
		params.Username = u
	}
	if pw := v.GetString("api-password"); pw != "" {
		params.Password = pw
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var ctrl *wizard.Controller
	client := api.New(v.GetString("api-url"), api.WithExpiryHook(func(token string) {
		ctrl.Expire(token)
	}))
	ctrl = wizard.New(client, db, pollOptions(v)...)
	defer ctrl.Close()

	// Cancelling the command abandons the running poll.
	go func() {
		<-ctx.Done()
		ctrl.Close()
	}()

	if err := ctrl.Login(ctx, params.Username, params.Password); err != nil {
		return wizardError(ctx, ctrl, "login", err)
	}
	if err := ctrl.UpdateForm(params.Form); err != nil {
		return wizardError(ctx, ctrl, "update form", err)
	}
	form := ctrl.State().Form
	if d, b := form.DifficultyTotal(), form.BloomTotal(); d != 100 || b != 100 {
		slog.Warn("distribution totals are not 100%", "difficulty", d, "bloom", b)
	}

	steps := []struct {
		name   string
		action func(context.Context) error
		want   model.Step
	}{
		{"submit configuration", ctrl.SubmitConfiguration, model.StepReviewMetadata},
		{"confirm metadata", ctrl.ConfirmMetadata, model.StepReviewQuestions},
		{"generate worksheet", ctrl.GenerateWorksheet, model.StepComplete},
	}
	for _, s := range steps {
		start := time.Now()
		if err := s.action(ctx); err != nil {
			return wizardError(ctx, ctrl, s.name, err)
		}
		ctrl.Wait()
		if st := ctrl.State(); st.Step != s.want {
			return stepError(ctx, s.name, st)
		}
		slog.Info("step finished", "step", s.name, "elapsed", time.Since(start).Round(time.Second))
	}

	ws, err := ctrl.Worksheet()
	if err != nil {
		return fmt.Errorf("read worksheet: %w", err)
	}
	path, err := export.Save(v.GetString("output-dir"), ws, time.Now())
	if err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	if _, err := db.RecordExport(ctx, ws.ID.String(), path); err != nil {
		slog.Warn("failed to record export", "error", err)
	}

	fmt.Println(appI18n.Tp(ctx, "QuestionsGenerated", countQuestions(ws)))
	fmt.Println(appI18n.Td(ctx, "ExportSaved", map[string]any{"Path": path}))
	return nil
}

// wizardError prefers the localized wizard message over the raw error.
func wizardError(ctx context.Context, ctrl *wizard.Controller, op string, err error) error {
	if m := ctrl.State().Error; m != nil {
		return fmt.Errorf("%s: %s: %w", op, appI18n.Message(ctx, m.ID, m.Detail), err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func stepError(ctx context.Context, op string, st wizard.View) error {
	if st.Error != nil {
		return fmt.Errorf("%s: %s", op, appI18n.Message(ctx, st.Error.ID, st.Error.Detail))
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%s: wizard stopped at step %s", op, st.Step)
}

func countQuestions(ws *model.Worksheet) int {
	n := 0
	if ws.Questions != nil {
		for _, list := range ws.Questions.ByType {
			n += len(list)
		}
	}
	return n
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <worksheet.json>",
		Short: "Convert a worksheet JSON document into a workbook",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().StringP("output-dir", "o", ".", "Directory for the workbook")
	addLoggingFlags(cmd)
	return cmd
}

// readWorksheet accepts either a worksheet object or a job status document
// wrapping it in "data".
func readWorksheet(path string) (*model.Worksheet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var wrapped struct {
		Data *model.Worksheet `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if wrapped.Data != nil {
		return wrapped.Data, nil
	}
	var ws model.Worksheet
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &ws, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ws, err := readWorksheet(args[0])
	if err != nil {
		return err
	}
	if !ws.HasQuestions() {
		return fmt.Errorf("%s: worksheet has no questions", args[0])
	}
	path, err := export.Save(v.GetString("output-dir"), ws, time.Now())
	if err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	slog.Info("workbook saved", "path", path, "questions", countQuestions(ws))
	fmt.Println(path)
	return nil
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or clear the cached wizard session",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the cached session as JSON",
		RunE:  runSessionShow,
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the cached session",
		RunE:  runSessionClear,
	}
	for _, c := range []*cobra.Command{show, clearCmd} {
		c.Flags().String("db", "worksheetgen.db", "SQLite database path for the session cache")
		addLoggingFlags(c)
	}
	cmd.AddCommand(show, clearCmd)
	return cmd
}

func runSessionShow(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	sess, err := db.RestoreSession(cmd.Context())
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if sess == nil {
		fmt.Fprintln(os.Stderr, "no cached session")
		return nil
	}
	// The token itself is not printed.
	sess.Token = "<redacted>"
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runSessionClear(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.ClearSession(cmd.Context()); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	slog.Info("session cleared")
	return nil
}
