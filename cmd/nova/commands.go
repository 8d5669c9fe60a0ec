package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/nova/internal/agent"
	"github.com/kalambet/nova/internal/api"
	"github.com/kalambet/nova/internal/assistant"
	"github.com/kalambet/nova/internal/config"
)

// sessionTitleLen caps the title of sessions created implicitly by ask/chat.
const sessionTitleLen = 40

// ensureSession returns id, or creates a session titled after text when id
// is empty.
func ensureSession(ctx context.Context, client *apiClient, id, text string) (string, error) {
	if id != "" {
		return id, nil
	}
	title := text
	if len([]rune(title)) > sessionTitleLen {
		title = string([]rune(title)[:sessionTitleLen]) + "..."
	}
	resp, err := client.post(ctx, "/v1/sessions", api.CreateSessionRequest{Title: title})
	if err != nil {
		return "", err
	}
	var s api.SessionView
	if err := decodeJSON(resp, &s); err != nil {
		return "", err
	}
	return s.ID, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Run one perceive-reason-act turn and show the reasoning",
	Long: `Run one perceive-reason-act turn and show the reasoning.

Examples:
  nova ask "Please create a report for the team meeting tomorrow at 3pm"
  nova ask --session 6f1c... "and send it to alice@example.com"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		sessionID, err = ensureSession(ctx, client, sessionID, text)
		if err != nil {
			return err
		}

		resp, err := client.post(ctx, "/v1/sessions/"+url.PathEscape(sessionID)+"/process", api.TextRequest{Text: text})
		if err != nil {
			return err
		}
		var result api.ProcessResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		renderResult(os.Stdout, result.SessionID, result.Result)
		return nil
	},
}

// renderResult prints the response followed by the reasoning breakdown.
func renderResult(w io.Writer, sessionID string, r agent.Result) {
	fmt.Fprintln(w, r.ResponseText)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Session:"), sessionID)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Intent:"), r.Perception.Intent)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Sentiment:"), r.Perception.Sentiment)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Entities:"), formatEntities(r.Perception.Entities))
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Goal:"), r.Reasoning.Goal)
	if len(r.Reasoning.Prerequisites) > 0 {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Prerequisites:"), strings.Join(r.Reasoning.Prerequisites, ", "))
	}
	fmt.Fprintf(w, "%s %.2f\n", colorize(colorBold, "Confidence:"), r.Reasoning.Confidence)
	fmt.Fprintf(w, "%s (%s)\n", colorize(colorBold, "Plan:"), r.Reasoning.Plan.EstimatedTime)
	for i, step := range r.Reasoning.Plan.Steps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}

// formatEntities renders categories in a stable order: "dates=[tomorrow] times=[3pm]".
func formatEntities(e agent.Entities) string {
	if len(e) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=[%s]", k, strings.Join(e[k], ", "))
	}
	return strings.Join(parts, " ")
}

func init() {
	askCmd.Flags().String("session", "", "session id to continue (default: new session)")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Chat with NOVA (stocks, inbox, calendar, weather, macro, news or anything else)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		sessionID, err = ensureSession(ctx, client, sessionID, message)
		if err != nil {
			return err
		}

		resp, err := client.post(ctx, "/v1/sessions/"+url.PathEscape(sessionID)+"/chat", api.ChatRequest{Message: message})
		if err != nil {
			return err
		}
		var reply api.ChatResponse
		if err := decodeJSON(resp, &reply); err != nil {
			return err
		}

		fmt.Println(reply.Reply)
		printStatus("Session", "%s", reply.SessionID)
		printStatus("Handler", "%s", reply.Handler)
		return nil
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session id to continue (default: new session)")
}

// --- perceive ---

var perceiveCmd = &cobra.Command{
	Use:   "perceive <text>",
	Short: "Analyze text without storing anything",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/perceive", api.TextRequest{Text: strings.Join(args, " ")})
		if err != nil {
			return err
		}
		var out api.PerceiveResponse
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/sessions?limit=%d", limit))
		if err != nil {
			return err
		}
		var sessions []api.SessionView
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		renderSessions(os.Stdout, sessions)
		return nil
	},
}

func renderSessions(w io.Writer, sessions []api.SessionView) {
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s  %s  %3d turns  %s\n",
			colorize(colorCyan, s.ID),
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.Turns,
			title,
		)
	}
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session and its perceptions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		id := url.PathEscape(args[0])

		resp, err := client.get(ctx, "/v1/sessions/"+id)
		if err != nil {
			return err
		}
		var info api.SessionView
		if err := decodeJSON(resp, &info); err != nil {
			return err
		}

		resp, err = client.get(ctx, "/v1/sessions/"+id+"/perceptions")
		if err != nil {
			return err
		}
		var perceptions []agent.Perception
		if err := decodeJSON(resp, &perceptions); err != nil {
			return err
		}

		return printJSON(struct {
			api.SessionView
			Perceptions []agent.Perception `json:"perceptions"`
		}{info, perceptions})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session with its perceptions and chat history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted session %s", args[0])
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "maximum number of sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history <session>",
	Short: "Show the chat history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/v1/sessions/" + url.PathEscape(args[0]) + "/history"
		if limit > 0 {
			path += fmt.Sprintf("?limit=%d", limit)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var turns []api.ChatTurnView
		if err := decodeJSON(resp, &turns); err != nil {
			return err
		}

		if len(turns) == 0 {
			fmt.Println("No chat history.")
			return nil
		}
		renderHistory(os.Stdout, turns)
		return nil
	},
}

func renderHistory(w io.Writer, turns []api.ChatTurnView) {
	for _, t := range turns {
		label := t.Role
		if t.Handler != "" {
			label += " (" + t.Handler + ")"
		}
		fmt.Fprintf(w, "%s %s\n%s\n\n",
			colorize(colorBold, label),
			t.CreatedAt.Format("15:04"),
			t.Content,
		)
	}
}

func init() {
	historyCmd.Flags().Int("limit", 0, "show only the most recent N messages")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys:\n  " +
		strings.Join(config.ValidKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store an API key or other secret",
	Long: "Store a secret in the secrets file. Valid keys:\n  " +
		strings.Join(config.SecretKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(config.NewSecretStore(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

// --- tables ---

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Inspect the intent, goal and plan tables",
}

var tablesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the active tables as YAML (a starting point for tables.yaml)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		t, err := loadTables(tablesPath(cfg))
		if err != nil {
			return err
		}
		return t.WriteYAML(os.Stdout)
	},
}

var tablesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a tables file (default: the configured one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var path string
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path = tablesPath(cfg)
		}

		t, err := agent.LoadTables(path)
		if err != nil {
			return err
		}
		printSuccess("%s is valid (%d intents, %d plans)", path, len(t.Intents), len(t.Plans))
		return nil
	},
}

func init() {
	tablesCmd.AddCommand(tablesDumpCmd)
	tablesCmd.AddCommand(tablesValidateCmd)
}

// --- snapshot / brief ---

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show weather, macro figures and local time",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/snapshot")
		if err != nil {
			return err
		}
		var s assistant.Snapshot
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}
		renderSnapshot(os.Stdout, s)
		return nil
	},
}

func renderSnapshot(w io.Writer, s assistant.Snapshot) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Weather in "+s.City+":"), s.Weather)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Macro:"), s.Macro)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Time:"), s.Time)
}

var briefCmd = &cobra.Command{
	Use:   "brief [tickers...]",
	Short: "Print the daily market brief",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/v1/brief"
		if len(args) > 0 {
			path += "?tickers=" + url.QueryEscape(strings.Join(args, ","))
		}
		text, err := client.getText(cmd.Context(), path)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil
	},
}

// --- mail ---

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Send mail through the linked Gmail account",
}

var mailSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Queue a message for sending",
	Long: `Queue a message for sending.

Examples:
  nova mail send --to alice@example.com --subject "Report" --body "Attached below."
  nova mail send --to bob@example.com --body "Draft for later" --draft`,
	RunE: func(cmd *cobra.Command, args []string) error {
		to, _ := cmd.Flags().GetString("to")
		subject, _ := cmd.Flags().GetString("subject")
		body, _ := cmd.Flags().GetString("body")
		draft, _ := cmd.Flags().GetBool("draft")

		if to == "" || body == "" {
			return fmt.Errorf("--to and --body are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/mail", api.MailRequest{
			To:      to,
			Subject: subject,
			Body:    body,
			Draft:   draft,
		})
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued mail job %s", result["id"])
		return nil
	},
}

var mailStatusCmd = &cobra.Command{
	Use:   "status <job>",
	Short: "Show the delivery status of a queued message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/mail/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var job api.JobView
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}

		printStatus("Job", "%s (%s)", job.ID, job.Type)
		printStatus("Status", "%s", job.Status)
		printStatus("Attempts", "%d", job.Attempts)
		if job.LastError != "" {
			printStatus("Last error", "%s", job.LastError)
		}
		return nil
	},
}

func init() {
	mailSendCmd.Flags().String("to", "", "recipient address")
	mailSendCmd.Flags().String("subject", "", "subject line")
	mailSendCmd.Flags().String("body", "", "plain text body")
	mailSendCmd.Flags().Bool("draft", false, "save as a draft instead of sending")
	mailCmd.AddCommand(mailSendCmd)
	mailCmd.AddCommand(mailStatusCmd)
}
