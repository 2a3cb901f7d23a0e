package cmd

import (
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-errors/errors"
	"github.com/mitchellh/mapstructure"
	"github.com/privacybydesign/pidissuer"
	"github.com/privacybydesign/pidissuer/server"
	issuerserver "github.com/privacybydesign/pidissuer/server/pidissuer"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var logger = server.NewLogger(0, false, false)
var conf *server.Configuration

var RootCommand = &cobra.Command{
	Use:     "pidissuerd",
	Short:   "PID issuer serving its OpenID4VCI metadata and trusted CAs",
	Version: pidissuer.Version,
	Run: func(command *cobra.Command, args []string) {
		if err := configure(command); err != nil {
			die(errors.WrapPrefix(err, "Failed to read configuration", 0))
		}
		if err := conf.Check(); err != nil {
			die(errors.WrapPrefix(err, "Invalid configuration", 0))
		}
		serv, err := issuerserver.New(conf)
		if err != nil {
			die(errors.WrapPrefix(err, "Failed to configure server", 0))
		}

		stopped := make(chan struct{})
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)

		go func() {
			if err := serv.Start(); err != nil {
				die(errors.WrapPrefix(err, "Failed to start server", 0))
			}
			conf.Logger.Debug("Server stopped")
			stopped <- struct{}{}
		}()

		for {
			select {
			case <-reload:
				conf.Logger.Info("Caught SIGHUP, reloading")
				serv.Reload()
			case <-interrupt:
				conf.Logger.Debug("Caught interrupt")
				serv.Stop() // causes serv.Start() above to return
				conf.Logger.Debug("Sent stop signal to server")
			case <-stopped:
				conf.Logger.Info("Exiting")
				signal.Stop(interrupt)
				signal.Stop(reload)
				return
			}
		}
	},
}

func init() {
	if err := setFlags(RootCommand); err != nil {
		die(errors.WrapPrefix(err, "Failed to attach flags to "+RootCommand.Name()+" command", 0))
	}
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCommand.
func Execute() {
	if err := RootCommand.Execute(); err != nil {
		die(errors.Wrap(err, 0))
	}
}

func die(err *errors.Error) {
	msg := err.Error()
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		msg += "\nStack trace:\n" + string(err.Stack())
	}
	logger.Fatal(msg)
}

func setFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.SortFlags = false
	flags.SetNormalizeFunc(underscoreAlias)

	flags.StringP("config", "c", "", "path to configuration file")
	flags.StringP("url", "u", "", "external URL of the issuer, used as credential issuer identifier")
	flags.Bool("no-tls", false, "Disable TLS")
	flags.StringP("organization-id", "o", "", "name of the issuing organization")
	flags.String("logo-alt-text", "", "alternative text of the issuer logo")
	flags.String("display", "", "issuer display entries (in JSON), replacing the default derived from --organization-id")
	flags.Lookup("url").Header = `Issuer metadata`

	flags.String("trusted-cas-path", server.DefaultTrustedCAsPath, "path to the directory containing trusted CA certificates (*.pem)")
	flags.String("credentials-supported-path", server.DefaultCredentialsSupportedPath, "path to the directory containing credential descriptors (*.json)")
	flags.Bool("require-trust-anchors", false, "fail when no trusted CA certificate could be loaded")
	flags.Int("reload-interval", server.DefaultReloadInterval, "reload trusted CAs and credential descriptors every x minutes (0 to disable)")
	flags.Lookup("trusted-cas-path").Header = `Trusted CAs and credential descriptors`

	flags.IntP("port", "p", server.DefaultPort, "port at which to listen")
	flags.StringP("listen-addr", "l", "", "address at which to listen (default 0.0.0.0)")
	flags.Bool("metrics", false, "serve Prometheus metrics at /metrics")
	flags.Lookup("port").Header = `Server address and port to listen on`

	flags.CountP("verbose", "v", "verbose (repeatable)")
	flags.BoolP("quiet", "q", false, "quiet")
	flags.Bool("log-json", false, "Log in JSON format")
	flags.Bool("production", false, "Production mode")
	flags.Lookup("verbose").Header = `Other options`

	return nil
}

// underscoreAlias allows flags to be spelled like their configuration file keys.
func underscoreAlias(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func configure(cmd *cobra.Command) error {
	dashReplacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(dashReplacer)
	viper.SetFileKeyReplacer(dashReplacer)
	viper.SetEnvPrefix("PIDISSUER")
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Locate and read configuration file
	confpath := viper.GetString("config")
	if confpath != "" {
		dir, file := filepath.Dir(confpath), filepath.Base(confpath)
		viper.SetConfigName(strings.TrimSuffix(file, filepath.Ext(file)))
		viper.AddConfigPath(dir)
	} else {
		viper.SetConfigName("pidissuer")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/pidissuer/")
		viper.AddConfigPath("$HOME/.pidissuer")
	}
	err := viper.ReadInConfig() // Hold error checking until we know how much of it to log

	// Create our logger instance
	logger = server.NewLogger(viper.GetInt("verbose"), viper.GetBool("quiet"), viper.GetBool("log-json"))

	// First log output: development or production mode, log level
	mode := "development"
	if viper.GetBool("production") {
		mode = "production"
	}
	logger.WithFields(logrus.Fields{
		"version":   pidissuer.Version,
		"mode":      mode,
		"verbosity": server.Verbosity(viper.GetInt("verbose")),
	}).Info("pid issuer running")

	// Now we finally examine and log any error from viper.ReadInConfig()
	if err != nil {
		if _, notfound := err.(viper.ConfigFileNotFoundError); notfound {
			logger.Info("No configuration file found")
		} else {
			die(errors.WrapPrefix(err, "Failed to unmarshal configuration file at "+viper.ConfigFileUsed(), 0))
		}
	} else {
		logger.Info("Config file: ", viper.ConfigFileUsed())
	}

	// Read configuration from flags and/or environmental variables
	conf = &server.Configuration{
		URL:                      viper.GetString("url"),
		DisableTLS:               viper.GetBool("no-tls"),
		OrganizationID:           viper.GetString("organization-id"),
		LogoAltText:              viper.GetString("logo-alt-text"),
		TrustedCAsPath:           viper.GetString("trusted-cas-path"),
		CredentialsSupportedPath: viper.GetString("credentials-supported-path"),
		RequireTrustAnchors:      viper.GetBool("require-trust-anchors"),
		ReloadInterval:           viper.GetInt("reload-interval"),
		ListenAddress:            viper.GetString("listen-addr"),
		Port:                     viper.GetInt("port"),
		EnableMetrics:            viper.GetBool("metrics"),
		Verbose:                  viper.GetInt("verbose"),
		Quiet:                    viper.GetBool("quiet"),
		LogJSON:                  viper.GetBool("log-json"),
		Logger:                   logger,
		Production:               viper.GetBool("production"),
	}

	if err := decodeDisplay(viper.Get("display"), conf); err != nil {
		return err
	}

	logger.Debug("Done configuring")

	return nil
}

// decodeDisplay decodes the display entries, given either as JSON string by a flag or env var
// or as list in the configuration file.
func decodeDisplay(val interface{}, conf *server.Configuration) error {
	if str, flagOrEnv := val.(string); flagOrEnv {
		if str == "" {
			return nil
		}
		var parsed []interface{}
		if err := json.Unmarshal([]byte(str), &parsed); err != nil {
			return errors.WrapPrefix(err, "Failed to unmarshal display from flag or env var", 0)
		}
		val = parsed
	}
	if val == nil {
		return nil
	}

	entries, err := cast.ToSliceE(val)
	if err != nil {
		return errors.WrapPrefix(err, "Failed to unmarshal display from config file", 0)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := mapstructure.Decode(entries, &conf.Display); err != nil {
		return errors.WrapPrefix(err, "Failed to unmarshal display from config file", 0)
	}
	return nil
}
