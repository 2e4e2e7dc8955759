package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quickgpt/quickgpt/internal/client"
	"github.com/quickgpt/quickgpt/internal/model"
)

// app carries what every command needs. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	out, errOut io.Writer

	configPath string
	server     string
	timeout    time.Duration
	verbose    bool

	cfg    *cliConfig
	api    *client.Client
	logger *slog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "qgpt",
		Short:         "Chat with QuickGPT from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath(), "Config file")
	root.PersistentFlags().StringVar(&a.server, "server", "", "API base URL (overrides config)")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 2*time.Minute, "Request timeout")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.chatsCmd(),
		a.newCmd(),
		a.useCmd(),
		a.deleteCmd(),
		a.historyCmd(),
		a.sendCmd(),
		a.galleryCmd(),
		a.plansCmd(),
		a.buyCmd(),
	)
	return root
}

func (a *app) init() error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.server != "" {
		cfg.Server = a.server
	}
	a.cfg = cfg
	a.api = client.New(cfg.Server, client.WithToken(cfg.Token))
	return nil
}

func (a *app) save() error {
	return a.cfg.save(a.configPath)
}

func (a *app) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

// controller loads the chats and restores the saved selection.
func (a *app) controller(ctx context.Context) (*client.SyncController, error) {
	if a.cfg.Token == "" {
		return nil, errors.New("not logged in; run qgpt login")
	}
	s := client.NewSyncController(a.api, a.logger)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	if a.cfg.Chat != "" {
		if err := s.SelectChat(a.cfg.Chat); err != nil {
			a.logger.Debug("saved chat no longer exists", "chat_id", a.cfg.Chat)
		}
	}
	return s, nil
}

// remember persists the controller's selection.
func (a *app) remember(s *client.SyncController) error {
	a.cfg.Chat = s.State().SelectedChatID
	return a.save()
}

func (a *app) registerCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			resp, err := a.api.Register(ctx, name, email, passwordOrEnv(password))
			if err != nil {
				return err
			}
			a.cfg.Token, a.cfg.Chat = resp.Token, ""
			if err := a.save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Welcome, %s. You have %d credits.\n", resp.User.Name, resp.User.Credits)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (or QGPT_PASSWORD)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			resp, err := a.api.Login(ctx, email, passwordOrEnv(password))
			if err != nil {
				return err
			}
			a.cfg.Token, a.cfg.Chat = resp.Token, ""
			if err := a.save(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s (%d credits).\n", resp.User.Email, resp.User.Credits)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (or QGPT_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if a.cfg.Token != "" {
				if err := a.api.Logout(ctx); err != nil && !client.IsUnauthorized(err) {
					return err
				}
			}
			a.cfg.Token, a.cfg.Chat, a.cfg.Draft = "", "", ""
			if err := a.save(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out.")
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user and credit balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			user, err := a.api.Me(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s <%s>\ncredits: %d\n", user.Name, user.Email, user.Credits)
			return nil
		},
	}
}

func (a *app) chatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chats [query]",
		Short: "List chats, optionally filtered by name or last message",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.controller(ctx)
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			selected := s.State().SelectedChatID
			for _, c := range s.Search(query) {
				printChatLine(a.out, c, c.ID == selected)
			}
			return a.remember(s)
		},
	}
}

func (a *app) newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat and select it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.controller(ctx)
			if err != nil {
				return err
			}
			chat, err := s.NewChat(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created chat %s\n", chat.ID)
			return a.remember(s)
		},
	}
}

func (a *app) useCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <chat-id>",
		Short: "Select a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.controller(ctx)
			if err != nil {
				return err
			}
			if err := s.SelectChat(args[0]); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return a.remember(s)
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.controller(ctx)
			if err != nil {
				return err
			}
			if err := s.DeleteChat(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted chat %s\n", args[0])
			return a.remember(s)
		},
	}
}

func (a *app) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the messages of the selected chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.controller(ctx)
			if err != nil {
				return err
			}
			for _, m := range s.ActiveMessages() {
				printMessage(a.out, m)
			}
			return a.remember(s)
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	var image, publish bool
	cmd := &cobra.Command{
		Use:   "send [prompt...]",
		Short: "Send a prompt to the selected chat",
		Long: `Send a prompt to the selected chat.

Text prompts cost 1 credit and image prompts cost 2. If sending fails the
prompt is kept as a draft; run send with no arguments to retry it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if prompt == "" {
				prompt = a.cfg.Draft
			}
			if prompt == "" {
				return errors.New("nothing to send")
			}
			mode := model.ModeText
			if image {
				mode = model.ModeImage
			}

			ctx, cancel := a.ctx(cmd)
			defer cancel()
			s, err := a.controller(ctx)
			if err != nil {
				return err
			}

			reply, err := s.Submit(ctx, prompt, mode, publish)
			if err != nil {
				var subErr *client.SubmitError
				if errors.As(err, &subErr) {
					a.cfg.Draft = subErr.Draft
					if saveErr := a.remember(s); saveErr != nil {
						a.logger.Warn("could not save draft", "error", saveErr)
					}
				}
				return err
			}

			a.cfg.Draft = ""
			printMessage(a.out, *reply)
			if u := s.State().User; u != nil {
				fmt.Fprintf(a.out, "(%d credits left)\n", u.Credits)
			}
			return a.remember(s)
		},
	}
	cmd.Flags().BoolVar(&image, "image", false, "Generate an image")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish the image to the community gallery")
	return cmd
}

func (a *app) galleryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gallery",
		Short: "List published images",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			images, err := a.api.PublishedImages(ctx)
			if err != nil {
				return err
			}
			for _, img := range images {
				fmt.Fprintf(a.out, "%s  %-16s %s\n", img.CreatedAt.Format(time.DateOnly), img.UserName, img.ImageURL)
			}
			return nil
		},
	}
}

func (a *app) plansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List credit plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			plans, err := a.api.Plans(ctx)
			if err != nil {
				return err
			}
			for _, p := range plans {
				fmt.Fprintf(a.out, "%-8s %5d credits  $%d\n", p.ID, p.Credits, p.Price)
			}
			return nil
		},
	}
}

func (a *app) buyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy <plan-id>",
		Short: "Start a credit purchase and print the checkout URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			resp, err := a.api.Purchase(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Complete payment at:\n%s\n", resp.URL)
			return nil
		},
	}
}

func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("QGPT_PASSWORD")
}

func printChatLine(w io.Writer, c *model.Chat, selected bool) {
	marker := " "
	if selected {
		marker = "*"
	}
	preview := ""
	if last := c.LastMessage(); last != nil {
		preview = truncate(last.Content, 48)
	}
	fmt.Fprintf(w, "%s %s  %-20s %s\n", marker, c.ID, truncate(c.Name, 20), preview)
}

func printMessage(w io.Writer, m model.Message) {
	label := "you"
	if m.Role == model.RoleAssistant {
		label = "gpt"
	}
	content := m.Content
	if m.IsImage {
		content = "[image] " + content
	}
	fmt.Fprintf(w, "%s> %s\n", label, content)
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
