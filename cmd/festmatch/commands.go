package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	clienterrors "github.com/jrsteele09/festmatch-client/internal/errors"
	"github.com/jrsteele09/festmatch-client/sessions"
	"github.com/jrsteele09/festmatch-client/token"
	"github.com/urfave/cli/v2"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the stored session",
		Action: func(c *cli.Context) error {
			d := getDeps(c)
			current, err := d.store.Current(c.Context)
			if clienterrors.Is(err, clienterrors.ErrNoSession) {
				fmt.Println("Signed out")
				return nil
			}
			if err != nil {
				return err
			}
			printSession(current, d.client.ExpiryThreshold())
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Renew the access token now",
		Action: func(c *cli.Context) error {
			d := getDeps(c)
			if _, err := d.client.Refresh(c.Context); err != nil {
				return err
			}
			current, err := d.store.Current(c.Context)
			if err != nil {
				return err
			}
			printSession(current, d.client.ExpiryThreshold())
			return nil
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET an API path with the session's credentials",
		ArgsUsage: "PATH",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: festmatch get PATH", 2)
			}
			return call(c, http.MethodGet, c.Args().Get(0), "")
		},
	}
}

func postCommand() *cli.Command {
	return &cli.Command{
		Name:      "post",
		Usage:     "POST a JSON body to an API path",
		ArgsUsage: "PATH JSON",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("usage: festmatch post PATH JSON", 2)
			}
			body := c.Args().Get(1)
			if !json.Valid([]byte(body)) {
				return cli.Exit("body is not valid JSON", 2)
			}
			return call(c, http.MethodPost, c.Args().Get(0), body)
		},
	}
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Sign in with a Kakao authorization code",
		ArgsUsage: "CODE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: festmatch login CODE", 2)
			}
			d := getDeps(c)
			session, err := d.accounts.Login(c.Context, c.Args().Get(0))
			if err != nil {
				return err
			}
			printSession(*session, d.client.ExpiryThreshold())
			return nil
		},
	}
}

func importTokenCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-token",
		Usage:     "Start a session from an access token obtained elsewhere",
		ArgsUsage: "TOKEN",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: festmatch import-token TOKEN", 2)
			}
			d := getDeps(c)
			session, err := d.accounts.BootstrapToken(c.Context, c.Args().Get(0))
			if err != nil {
				return err
			}
			printSession(*session, d.client.ExpiryThreshold())
			return nil
		},
	}
}

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Sync the profile and credit balance from the backend",
		Action: func(c *cli.Context) error {
			d := getDeps(c)
			if _, err := d.accounts.RefreshProfile(c.Context); err != nil {
				return err
			}
			if _, err := d.accounts.RefreshCredits(c.Context); err != nil {
				return err
			}
			current, err := d.store.Current(c.Context)
			if err != nil {
				return err
			}
			printSession(current, d.client.ExpiryThreshold())
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget the stored session",
		Action: func(c *cli.Context) error {
			if err := getDeps(c).accounts.Logout(c.Context); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func bridgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "bridge",
		Usage: "Restore the session and fetch a realtime custom token",
		Action: func(c *cli.Context) error {
			d := getDeps(c)
			res, err := d.bootstrap.Run(c.Context)
			if err != nil {
				return err
			}
			if res.BridgeErr != nil {
				return res.BridgeErr
			}
			fmt.Printf("uid:          %s\n", res.Bridge.UID)
			fmt.Printf("refreshed:    %t\n", res.Refreshed)
			fmt.Printf("custom token: %s\n", res.Bridge.Token)
			return nil
		},
	}
}

// call sends a raw request through the client and prints status and body
func call(c *cli.Context, method, path, body string) error {
	d := getDeps(c)

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequestWithContext(c.Context, method, d.client.URL(path), reader)
	if err != nil {
		return err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fmt.Fprintln(os.Stderr, resp.Status)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	fmt.Println(strings.TrimRight(string(data), "\n"))

	if resp.StatusCode >= 400 {
		return cli.Exit("", 1)
	}
	return nil
}

func printSession(s sessions.Session, threshold time.Duration) {
	userID := s.User.ID
	if userID == "" {
		userID = token.Subject(s.AccessToken)
	}
	fmt.Printf("user:         %s (%s)\n", s.User.Nickname, userID)
	fmt.Printf("registration: %s\n", s.User.RegistrationStatus)
	fmt.Printf("credits:      %d\n", s.User.Credits)

	exp, err := token.ExpiresAt(s.AccessToken)
	if err != nil {
		fmt.Printf("token:        unreadable (%v)\n", err)
		return
	}
	state := "valid"
	if token.WillExpireSoon(s.AccessToken, threshold) {
		state = "renews on next request"
	}
	fmt.Printf("token:        expires %s, %s\n", exp.Local().Format(time.RFC3339), state)
	fmt.Printf("updated:      %s\n", s.UpdatedAt.Local().Format(time.RFC3339))
}
