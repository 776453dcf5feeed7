package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oisee/abap-adt-mcp/internal/credentials"
	"github.com/oisee/abap-adt-mcp/pkg/adt"
)

// configRelPath is the config file location below the XDG config home.
const configRelPath = "abap-adt-mcp/config.yaml"

// stringFlag defines a string CLI flag bound to a config key
type stringFlag struct {
	name, shorthand, key, defaultValue, description string
}

// boolFlag defines a bool CLI flag bound to a config key
type boolFlag struct {
	name, shorthand, key, description string
}

var stringFlags = []stringFlag{
	{"url", "", "url", "", "SAP system URL (e.g., https://host:44300)"},
	{"client", "", "client", "001", "SAP client number"},
	{"language", "", "language", "EN", "SAP language"},
	{"auth-type", "", "auth-type", "basic", "Authentication type: basic or jwt"},
	{"user", "u", "username", "", "SAP username"},
	{"password", "p", "password", "", "SAP password (falls back to the OS keyring)"},
	{"jwt-token", "", "jwt-token", "", "Bearer token for jwt authentication"},
	{"log-level", "", "log-level", "warn", "Log level: debug, info, warn, error"},
	{"config", "c", "config", "", "Path to a YAML config file (default $XDG_CONFIG_HOME/" + configRelPath + ")"},
}

var boolFlags = []boolFlag{
	{"insecure", "", "insecure", "Skip TLS certificate verification"},
	{"verbose", "v", "verbose", "Enable debug logging to stderr"},
}

// newViper returns a viper instance with the SAP_ environment mapping and defaults.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("url", "SAP_URL", "SAP_SERVICE_URL")
	_ = v.BindEnv("username", "SAP_USERNAME", "SAP_USER")
	_ = v.BindEnv("password", "SAP_PASSWORD", "SAP_PASS")

	v.SetDefault("client", "001")
	v.SetDefault("language", "EN")
	v.SetDefault("auth-type", string(adt.AuthBasic))
	v.SetDefault("timeout", adt.DefaultTimeout)
	v.SetDefault("log-level", "warn")
	return v
}

func registerFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()

	for _, f := range stringFlags {
		if f.shorthand != "" {
			flags.StringP(f.name, f.shorthand, f.defaultValue, f.description)
		} else {
			flags.String(f.name, f.defaultValue, f.description)
		}
		_ = v.BindPFlag(f.key, flags.Lookup(f.name))
	}

	for _, f := range boolFlags {
		if f.shorthand != "" {
			flags.BoolP(f.name, f.shorthand, false, f.description)
		} else {
			flags.Bool(f.name, false, f.description)
		}
		_ = v.BindPFlag(f.key, flags.Lookup(f.name))
	}

	flags.Duration("timeout", adt.DefaultTimeout, "Per-request timeout")
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
}

// readConfigFile loads the YAML config file. An explicit path must exist;
// the default XDG location is optional.
func readConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		found, err := xdg.SearchConfigFile(configRelPath)
		if err != nil {
			return nil
		}
		path = found
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

func logLevel(v *viper.Viper) string {
	if v.GetBool("verbose") {
		return "debug"
	}
	return v.GetString("log-level")
}

// resolveConfig builds the connection settings from flags, environment,
// config file and defaults, in that order of priority. A basic auth password
// that none of them supply is looked up in the OS keyring.
func resolveConfig(v *viper.Viper, logger *log.Logger) (*adt.Config, error) {
	authType, err := adt.ParseAuthType(v.GetString("auth-type"))
	if err != nil {
		return nil, err
	}

	baseURL := strings.TrimSpace(v.GetString("url"))
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = adt.DefaultTimeout
	}

	opts := []adt.Option{
		adt.WithClient(v.GetString("client")),
		adt.WithLanguage(v.GetString("language")),
		adt.WithTimeout(timeout),
		adt.WithLogger(logger),
	}
	if v.GetBool("insecure") {
		opts = append(opts, adt.WithInsecureSkipVerify())
	}

	switch authType {
	case adt.AuthJWT:
		opts = append(opts, adt.WithJWT(v.GetString("jwt-token")))
	default:
		username := v.GetString("username")
		password := v.GetString("password")
		if password == "" && username != "" && baseURL != "" {
			password = keyringPassword(baseURL, username, logger)
		}
		opts = append(opts, adt.WithBasicAuth(username, password))
	}

	return adt.NewConfig(baseURL, opts...), nil
}

func keyringPassword(baseURL, username string, logger *log.Logger) string {
	account := credentials.Account(baseURL, username)
	password, err := credentials.NewStore().Password(account)
	if err != nil {
		if !errors.Is(err, credentials.ErrNotFound) {
			logger.Warn("keyring lookup failed", "account", account, "err", err)
		}
		return ""
	}
	logger.Debug("password loaded from keyring", "account", account)
	return password
}

// fileConfig is the on-disk YAML layout. Passwords are never written.
type fileConfig struct {
	URL      string `yaml:"url"`
	Client   string `yaml:"client"`
	Language string `yaml:"language"`
	AuthType string `yaml:"auth-type"`
	Username string `yaml:"username,omitempty"`
	Insecure bool   `yaml:"insecure"`
	Timeout  string `yaml:"timeout"`
	LogLevel string `yaml:"log-level"`
}

const configHeader = `# abap-adt-mcp configuration
# Flags and SAP_* environment variables override these values.
# Store the password in the OS keyring: abap-adt-mcp keyring set
`

func newConfigCmd(v *viper.Viper) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		// The file may not exist yet.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file template",
		Long: `Write a configuration file template, pre-filled from the current flags
and environment. The file goes to --config or $XDG_CONFIG_HOME/` + configRelPath + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := writeConfigTemplate(v, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}

func writeConfigTemplate(v *viper.Viper, force bool) (string, error) {
	path := v.GetString("config")
	if path == "" {
		p, err := xdg.ConfigFile(configRelPath)
		if err != nil {
			return "", fmt.Errorf("locating config directory: %w", err)
		}
		path = p
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	url := v.GetString("url")
	if url == "" {
		url = "https://host:44300"
	}
	timeout := v.GetDuration("timeout")
	if timeout <= 0 {
		timeout = adt.DefaultTimeout
	}

	data, err := yaml.Marshal(fileConfig{
		URL:      url,
		Client:   v.GetString("client"),
		Language: v.GetString("language"),
		AuthType: v.GetString("auth-type"),
		Username: v.GetString("username"),
		Insecure: v.GetBool("insecure"),
		Timeout:  timeout.Round(time.Second).String(),
		LogLevel: v.GetString("log-level"),
	})
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o600); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

func newKeyringCmd(v *viper.Viper) *cobra.Command {
	keyringCmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage the SAP password stored in the OS keyring",
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Store the password for --user on --url",
		Long: `Store the password for --user on --url in the OS keyring.
The password is taken from --password or SAP_PASSWORD, else read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := keyringAccount(v)
			if err != nil {
				return err
			}
			password := v.GetString("password")
			if password == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", account)
				if password, err = readLine(cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if err := credentials.NewStore().SetPassword(account, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password stored for %s\n", account)
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the stored password for --user on --url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, err := keyringAccount(v)
			if err != nil {
				return err
			}
			if err := credentials.NewStore().DeletePassword(account); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Password removed for %s\n", account)
			return nil
		},
	}

	keyringCmd.AddCommand(setCmd, deleteCmd)
	return keyringCmd
}

func keyringAccount(v *viper.Viper) (string, error) {
	baseURL := strings.TrimSpace(v.GetString("url"))
	username := strings.TrimSpace(v.GetString("username"))
	if baseURL == "" {
		return "", fmt.Errorf("SAP URL is required. Use --url flag or SAP_URL environment variable")
	}
	if username == "" {
		return "", fmt.Errorf("SAP user is required. Use --user flag or SAP_USER environment variable")
	}
	return credentials.Account(baseURL, username), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
