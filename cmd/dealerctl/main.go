package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:           "dealerctl",
	Short:         "Dealership records CLI",
	Long:          "A CLI for managing customers, sales staff and cars in the dealership backend.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Config profile to use (default: the last one logged in)")

	rootCmd.AddCommand(loginCmd(), logoutCmd(), whoamiCmd(), userCmd(), auditCmd())
	rootCmd.AddCommand(recordCmd("customer", "/customers", "Manage customers"))
	rootCmd.AddCommand(recordCmd("salesperson", "/salespeople", "Manage sales staff"))
	rootCmd.AddCommand(recordCmd("car", "/cars", "Manage cars"))
}

// readSecret prompts without echo on a terminal, or reads one line from a pipe.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimRight(scanner.Text(), "\r\n"), scanner.Err()
}

// parseAssignments turns key=value (string) and key:=json (raw JSON) pairs
// into a request body.
func parseAssignments(args []string) (map[string]any, error) {
	data := map[string]any{}
	for _, arg := range args {
		if k, raw, ok := strings.Cut(arg, ":="); ok && !strings.Contains(k, "=") {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("invalid JSON value for %s: %w", k, err)
			}
			data[k] = v
			continue
		}
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair: %s", arg)
		}
		data[k] = v
	}
	return data, nil
}

func parseID(arg string) (string, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("invalid id: %s", arg)
	}
	return strconv.FormatInt(id, 10), nil
}

// --- session ---

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			password, err := readSecret("Password: ")
			if err != nil {
				return err
			}
			token, err := newClient().login(email, password)
			if err != nil {
				return err
			}
			if err := saveSession(token); err != nil {
				return fmt.Errorf("saving session: %w", err)
			}
			printSuccess("Logged in as " + email + " (profile " + profileName + ")")
			return nil
		},
	}
	cmd.Flags().String("email", "", "Login e-mail address")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token != "" {
				// The token stays valid until it expires; only the local copy goes.
				newClient().call(http.MethodPost, "/users/logout", nil) //nolint:errcheck
			}
			if err := saveSession(""); err != nil {
				return err
			}
			printSuccess("Logged out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().call(http.MethodGet, "/users/me", nil)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}
}

// --- users ---

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage login principals"}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a principal",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, err := readSecret("New password: ")
			if err != nil {
				return err
			}
			result, err := newClient().call(http.MethodPost, "/users", map[string]string{
				"name": name, "email": email, "password": password,
			})
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("email", "", "Login e-mail address")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List principals",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().call(http.MethodGet, "/users", nil)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a principal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := newClient().call(http.MethodDelete, "/users/"+id, nil); err != nil {
				return err
			}
			printSuccess("Deleted principal " + id)
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd, deleteCmd)
	return cmd
}

// --- records ---

func recordCmd(name, base, short string) *cobra.Command {
	cmd := &cobra.Command{Use: name, Short: short}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List " + name + " records",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := newClient().call(http.MethodGet, base, nil)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			result, err := newClient().call(http.MethodGet, base+"/"+id, nil)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	createCmd := &cobra.Command{
		Use:   "create [key=value | key:=json ...]",
		Short: "Create a " + name,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseAssignments(args)
			if err != nil {
				return err
			}
			result, err := newClient().call(http.MethodPost, base, data)
			if err != nil {
				return err
			}
			printResult(result)
			return nil
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update <id> [key=value | key:=json ...]",
		Short: "Replace a " + name,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			data, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			if _, err := newClient().call(http.MethodPut, base+"/"+id, data); err != nil {
				return err
			}
			printSuccess("Updated " + name + " " + id)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a " + name,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := newClient().call(http.MethodDelete, base+"/"+id, nil); err != nil {
				return err
			}
			printSuccess("Deleted " + name + " " + id)
			return nil
		},
	}

	cmd.AddCommand(listCmd, getCmd, createCmd, updateCmd, deleteCmd)
	return cmd
}

// --- audit ---

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			since, _ := cmd.Flags().GetString("since")
			limit, _ := cmd.Flags().GetInt("limit")
			q := url.Values{}
			if path != "" {
				q.Set("path", path)
			}
			if since != "" {
				q.Set("since", since)
			}
			q.Set("limit", strconv.Itoa(limit))
			result, err := newClient().call(http.MethodGet, "/audit-log?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if m, ok := result.(map[string]any); ok {
				result = m["data"]
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("path", "", "Only entries whose path starts with this prefix")
	cmd.Flags().String("since", "", "Only entries at or after this RFC 3339 time")
	cmd.Flags().Int("limit", 50, "Maximum number of entries")
	return cmd
}
