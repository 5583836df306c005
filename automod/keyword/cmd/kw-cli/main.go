package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/keyword"
	"github.com/groupmeg/groupmod/automod/policy"

	"github.com/urfave/cli/v3"
)

func main() {
	app := cli.Command{
		Name:  "kw-cli",
		Usage: "informal debugging CLI tool for the content filter",
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:   "classify",
			Usage:  "reads lines of text from stdin, runs the content rules, outputs any verdicts",
			Action: runClassify,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "policy-file",
					Usage: "path to JSON file containing group policies (default policy if empty)",
				},
				&cli.StringFlag{
					Name:  "group",
					Usage: "which group's policy within the file to use",
					Value: "0",
				},
				&cli.BoolFlag{
					Name:  "admin",
					Usage: "classify as if the sender were a group admin",
				},
			},
		},
		&cli.Command{
			Name:   "symbols",
			Usage:  "reads lines of text from stdin, outputs the pictographic symbol count of each",
			Action: runSymbols,
		},
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(h))
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(-1)
	}
}

func runClassify(ctx context.Context, cmd *cli.Command) error {
	store := policy.NewMemPolicyStore()
	if p := cmd.String("policy-file"); p != "" {
		if err := store.LoadFromFileJSON(p); err != nil {
			return err
		}
	}
	group, err := strconv.ParseInt(cmd.String("group"), 10, 64)
	if err != nil {
		return err
	}
	gp, err := store.GetPolicy(ctx, chat.GroupID(group))
	if err != nil {
		return err
	}
	isAdmin := cmd.Bool("admin")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		v := keyword.Classify(line, &gp, isAdmin)
		if !v.IsClean() {
			fmt.Printf("MATCH\t%s\t%s\t%s\n", v.Kind, v.Reason(), line)
		}
	}
	return scanner.Err()
}

func runSymbols(ctx context.Context, cmd *cli.Command) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Printf("%d\t%s\n", keyword.CountSymbols(line), line)
	}
	return scanner.Err()
}
