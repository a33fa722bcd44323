package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ofjaaah-tools/crawlGTM/session"
)

// Credential capture is non-interactive: values arrive as flags and are
// stored as opaque blobs the adapters forward verbatim.

var loginFlags struct {
	bearer  string
	cookies string
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store post-stream API credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		headers := map[string]string{}
		if loginFlags.bearer != "" {
			headers["Authorization"] = "Bearer " + loginFlags.bearer
		}
		if loginFlags.cookies != "" {
			headers["Cookie"] = loginFlags.cookies
		}
		if len(headers) == 0 {
			return fmt.Errorf("login: provide --bearer and/or --cookies")
		}
		return saveBlob(session.XSessionFile, headers)
	},
}

var bwCookies string

var bwLoginCmd = &cobra.Command{
	Use:   "bw-login",
	Short: "Store BuiltWith session cookies",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bwCookies == "" {
			return fmt.Errorf("bw-login: provide --cookies")
		}
		return saveBlob(session.BuiltWithFile, map[string]string{"Cookie": bwCookies})
	},
}

var fofaKey string

var fofaSetupCmd = &cobra.Command{
	Use:   "fofa-setup",
	Short: "Store the FOFA API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fofaKey == "" {
			return fmt.Errorf("fofa-setup: provide --key")
		}
		return saveBlob(session.FofaKeyFile, map[string]string{"Key": fofaKey})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginFlags.bearer, "bearer", "", "API bearer token")
	loginCmd.Flags().StringVar(&loginFlags.cookies, "cookies", "", "session cookie header")
	bwLoginCmd.Flags().StringVar(&bwCookies, "cookies", "", "session cookie header")
	fofaSetupCmd.Flags().StringVar(&fofaKey, "key", "", "API key")
}

func saveBlob(name string, headers map[string]string) error {
	s, err := session.Open(name)
	if err != nil {
		return err
	}
	if err := s.Save(&session.Credentials{Headers: headers}); err != nil {
		return err
	}
	fmt.Printf("stored %s\n", name)
	return nil
}
