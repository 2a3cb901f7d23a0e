package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/pidissuer/eudi"
	"github.com/privacybydesign/pidissuer/internal/loadreport"
	"github.com/spf13/cobra"
)

var CheckCommand = &cobra.Command{
	Use:   "check",
	Short: "Check server configuration correctness",
	Long: `check reads the server configuration like the main command does, from a
configuration file, command line flags, or environmental variables, checks
that the configuration is valid, and loads the trusted CAs and credential
descriptors once. It lists the files that were skipped and why.

Specify -v to see the configuration.`,
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
		result, err := eudiConf.Reload()
		printReloadResult(command.OutOrStdout(), result)
		if err != nil {
			die(errors.WrapPrefix(err, "Failed to load issuer configuration", 0))
		}

		bts, _ := json.MarshalIndent(conf, "", "   ")
		conf.Logger.Debug("Configuration: ", string(bts), "\n")
	},
}

func init() {
	RootCommand.AddCommand(CheckCommand)

	if err := setFlags(CheckCommand); err != nil {
		die(errors.WrapPrefix(err, "Failed to attach flags to "+CheckCommand.Name()+" command", 0))
	}
}

func printReloadResult(w io.Writer, result *eudi.ReloadResult) {
	if result == nil {
		return
	}
	if result.TrustAnchors != nil {
		fmt.Fprintf(w, "Trusted CAs (%d):\n", result.TrustAnchors.Len())
		for _, issuer := range result.TrustAnchors.Issuers() {
			fmt.Fprintf(w, "  %s\n", issuer)
		}
	}
	printReport(w, result.TrustAnchorsReport)

	if result.DescriptorsReport == nil {
		return
	}
	formats := result.Descriptors.Formats()
	fmt.Fprintf(w, "Credential configurations (%d):\n", len(result.Descriptors))
	for _, id := range result.Descriptors.IDs() {
		fmt.Fprintf(w, "  %s (%s)\n", id, formats[id])
	}
	printReport(w, result.DescriptorsReport)
}

func printReport(w io.Writer, report *loadreport.Report) {
	if report == nil {
		return
	}
	skipped := append([]loadreport.Skip(nil), report.Skipped...)
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].File < skipped[j].File })
	for _, s := range skipped {
		fmt.Fprintf(w, "  skipped %s\n", s.Error())
	}
	for _, c := range report.Collisions {
		fmt.Fprintf(w, "  %s from %s overwritten by %s\n", c.Key, c.PreviousFile, c.File)
	}
}
