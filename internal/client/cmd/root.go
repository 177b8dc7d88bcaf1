package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"immun/internal/client/api"
	"immun/internal/client/session"
	"immun/internal/config"
	"immun/internal/dashboard"
)

// cli carries what every subcommand needs once flags and env are resolved.
type cli struct {
	cfg       config.Config
	serverURL string
	locale    string
	verbose   bool
	logger    *slog.Logger
	now       func() time.Time
	openURL   func(string) error
}

func NewRootCmd(version, buildDate string) *cobra.Command {
	return newRootCmd(&cli{now: time.Now, openURL: openInBrowser}, version, buildDate)
}

func newRootCmd(c *cli, version, buildDate string) *cobra.Command {
	root := &cobra.Command{
		Use:           "immun",
		Short:         "Immunization records client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}
	root.PersistentFlags().StringVar(&c.serverURL, "server", "", "Records API base URL (overrides IMMUN_API_URL)")
	root.PersistentFlags().StringVar(&c.locale, "locale", "", "Locale for dates (overrides IMMUN_LOCALE)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log API calls to stderr")

	root.AddCommand(newVersionCmd(version, buildDate))
	root.AddCommand(newLoginCmd(c), newLogoutCmd(c), newWhoamiCmd(c))
	root.AddCommand(newRecordsCmd(c))
	root.AddCommand(newAdminCmd(c))
	root.AddCommand(newVaultCmd(c))
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("server") {
		cfg.APIURL = c.serverURL
	}
	if cmd.Flags().Changed("locale") {
		cfg.Locale = c.locale
	}
	if c.verbose {
		cfg.LogLevel = "debug"
	}
	c.cfg = cfg
	c.logger = cfg.NewLogger(cmd.ErrOrStderr())
	return nil
}

func (c *cli) store() *session.Store {
	return session.NewStore(c.cfg.StateDir)
}

// authContext restores the stored session as the dashboard auth capability.
func (c *cli) authContext() (*session.Context, error) {
	store := c.store()
	sess, err := store.Active(c.now())
	if err != nil {
		return nil, err
	}
	return session.NewContext(sess, store, c.logger), nil
}

func (c *cli) apiClient(token func() string) *api.Client {
	opts := []api.Option{
		api.WithHTTPClient(&http.Client{Timeout: c.cfg.HTTPTimeout}),
		api.WithLogger(c.logger),
	}
	if token != nil {
		opts = append(opts, api.WithToken(token))
	}
	return api.New(c.cfg.APIURL, opts...)
}

func (c *cli) dashboardOptions() []dashboard.Option {
	return []dashboard.Option{dashboard.WithLocale(dashboard.ParseLocale(c.cfg.Locale))}
}

func stdinFile(cmd *cobra.Command) (*os.File, bool) {
	f, ok := cmd.InOrStdin().(*os.File)
	return f, ok
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
