package cmd

import (
	"fmt"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/pidissuer/eudi"
	"github.com/privacybydesign/pidissuer/eudi/openid4vci"
	"github.com/spf13/cobra"
)

var MetadataCommand = &cobra.Command{
	Use:   "metadata [credential-issuer|oauth|openid-configuration]",
	Short: "Print the metadata documents the server would serve",
	Long: `metadata reads the configuration like the main command does, assembles the
metadata documents from it and prints them as JSON. Without argument the
credential issuer metadata is printed.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"credential-issuer", "oauth", "openid-configuration"},
	Run: func(command *cobra.Command, args []string) {
		if err := configure(command); err != nil {
			die(errors.WrapPrefix(err, "Failed to read configuration from file, args, or env vars", 0))
		}
		if err := conf.Check(); err != nil {
			die(errors.WrapPrefix(err, "Invalid configuration", 0))
		}
		eudiConf, err := eudi.NewConfiguration(conf.EudiOptions(nil))
		if err != nil {
			die(errors.WrapPrefix(err, "Invalid configuration", 0))
		}
		if _, err := eudiConf.Reload(); err != nil {
			die(errors.WrapPrefix(err, "Failed to load issuer configuration", 0))
		}

		which := "credential-issuer"
		if len(args) > 0 {
			which = args[0]
		}
		doc, err := selectDocument(eudiConf.Documents(), which)
		if err != nil {
			die(errors.Wrap(err, 0))
		}
		bts, err := openid4vci.MarshalDocument(doc)
		if err != nil {
			die(errors.WrapPrefix(err, "Failed to marshal metadata", 0))
		}
		fmt.Fprintln(command.OutOrStdout(), string(bts))
	},
}

func init() {
	RootCommand.AddCommand(MetadataCommand)

	if err := setFlags(MetadataCommand); err != nil {
		die(errors.WrapPrefix(err, "Failed to attach flags to "+MetadataCommand.Name()+" command", 0))
	}
}

func selectDocument(docs *openid4vci.Documents, which string) (interface{}, error) {
	switch which {
	case "credential-issuer":
		return docs.CredentialIssuer, nil
	case "oauth":
		return docs.OAuth, nil
	case "openid-configuration":
		return docs.OpenIDConfiguration, nil
	default:
		return nil, errors.Errorf("unknown metadata document %q", which)
	}
}
