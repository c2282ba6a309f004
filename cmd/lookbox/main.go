// Command lookbox работает с кошельком устройства без сервера: баланс, покупки,
// ежедневный бонус и открытие мини-приложений поверх локального файла.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/linemk/lookbox-ledger/internal/app"
	"github.com/linemk/lookbox-ledger/internal/config"
	security "github.com/linemk/lookbox-ledger/internal/jwt-new"
	"github.com/linemk/lookbox-ledger/internal/lib/logger"
	"github.com/linemk/lookbox-ledger/internal/service"
)

const usage = `usage: lookbox [-config path] [-data file] [-v] <command>

commands:
  balance            show balance and daily reward status
  claim              claim the daily reward
  plans              list coin plans
  buy <planId>       buy a coin plan
  apps               list mini-apps
  check <appId>      show whether a mini-app can be opened
  open <appId>       open a mini-app (free use or 10 coins)
  history [-limit N] show recent transactions
  audit              compare balance with the transaction log
  token [-ttl D] <accountId>
                     issue a bearer token for the HTTP API (needs JWT_SECRET)
`

var errUsage = errors.New("invalid usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lookbox", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }

	configPath := fs.String("config", "", "path to config file")
	dataFile := fs.String("data", "", "ledger file, overrides ledger.data_file")
	verbose := fs.Bool("v", false, "write logs to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	// устройство всегда работает с локальным файлом и без кэша
	cfg.Ledger.Backend = config.BackendLocal
	cfg.Redis.Address = ""
	if *dataFile != "" {
		cfg.Ledger.DataFile = *dataFile
	}
	if cfg.Ledger.DeviceAccount == "" {
		cfg.Ledger.DeviceAccount = "device"
	}

	logOut := io.Discard
	if *verbose {
		logOut = stderr
	}
	log, closer := logger.New(cfg.Env, logOut, logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer closer.Close()

	a, err := app.NewApp(ctx, log, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer a.Close()

	c := &cli{app: a, account: cfg.Ledger.DeviceAccount, secret: cfg.JWT.Secret, out: stdout}
	if err := c.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, "error:", err)
			fmt.Fprint(stderr, usage)
			return 2
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

type cli struct {
	app     *app.App
	account string
	secret  string
	out     io.Writer
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "balance":
		return c.balance(ctx)
	case "claim":
		return c.claim(ctx)
	case "plans":
		return c.plans()
	case "buy":
		if len(args) != 1 {
			return fmt.Errorf("%w: buy needs a plan id", errUsage)
		}
		return c.buy(ctx, args[0])
	case "apps":
		return c.apps()
	case "check":
		if len(args) != 1 {
			return fmt.Errorf("%w: check needs an app id", errUsage)
		}
		return c.check(ctx, args[0])
	case "open":
		if len(args) != 1 {
			return fmt.Errorf("%w: open needs an app id", errUsage)
		}
		return c.open(ctx, args[0])
	case "history":
		return c.history(ctx, args)
	case "audit":
		return c.audit(ctx)
	case "token":
		return c.token(args)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (c *cli) balance(ctx context.Context) error {
	info, err := c.app.Ledger.GetBalance(ctx, c.account)
	if err != nil {
		return err
	}
	last := "never"
	if info.LastDailyRewardDate != nil {
		last = *info.LastDailyRewardDate
	}
	fmt.Fprintf(c.out, "balance: %d coins\n", info.Balance)
	fmt.Fprintf(c.out, "last daily reward: %s\n", last)
	if info.CanClaimDaily {
		fmt.Fprintln(c.out, "daily reward available")
	}
	return nil
}

func (c *cli) claim(ctx context.Context) error {
	res, err := c.app.Ledger.ClaimDailyReward(ctx, c.account)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, res.Message)
	fmt.Fprintf(c.out, "balance: %d coins\n", res.Balance)
	return nil
}

func (c *cli) plans() error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOINS\tBONUS\tPRICE\tPER COIN\t")
	for _, p := range c.app.Catalog.Plans() {
		mark := ""
		if p.Popular {
			mark = "*"
		}
		fmt.Fprintf(w, "%s%s\t%d\t%d\t%s\t%s\t\n", p.ID, mark, p.Coins, p.Bonus, p.PriceDisplay(), p.PricePerCoin().StringFixed(2))
	}
	return w.Flush()
}

func (c *cli) buy(ctx context.Context, planID string) error {
	plan, err := c.app.Catalog.Plan(planID)
	if err != nil {
		return err
	}
	res, err := c.app.Ledger.PurchasePlan(ctx, c.account, plan)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, res.Message)
	fmt.Fprintf(c.out, "balance: %d coins\n", res.Balance)
	return nil
}

func (c *cli) apps() error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\t")
	for _, mini := range c.app.Catalog.Apps() {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", mini.ID, mini.Name, mini.Category)
	}
	return w.Flush()
}

func (c *cli) check(ctx context.Context, appID string) error {
	mini, err := c.app.Catalog.App(appID)
	if err != nil {
		return err
	}
	info, err := c.app.Gate.Evaluate(ctx, c.account, mini.ID)
	if err != nil {
		return err
	}
	switch {
	case info.UsesLeft > 0:
		fmt.Fprintf(c.out, "%s: %d free uses left\n", mini.Name, info.UsesLeft)
	case info.CanUse:
		fmt.Fprintf(c.out, "%s: next use costs %d coins\n", mini.Name, service.CostPerUse)
	default:
		fmt.Fprintf(c.out, "%s: not enough coins, %d needed\n", mini.Name, service.CostPerUse)
	}
	return nil
}

func (c *cli) open(ctx context.Context, appID string) error {
	mini, err := c.app.Catalog.App(appID)
	if err != nil {
		return err
	}
	res, err := c.app.Gate.Consume(ctx, c.account, mini.ID, mini.Name)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, res.Message)
	return nil
}

func (c *cli) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", service.DefaultHistoryLimit, "number of transactions")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	txs, err := c.app.Ledger.GetTransactionHistory(ctx, c.account, *limit)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Fprintln(c.out, "no transactions yet")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tAMOUNT\tKIND\tDESCRIPTION\t")
	for _, tx := range txs {
		amount := strconv.FormatInt(tx.Amount, 10)
		if tx.Amount > 0 {
			amount = "+" + amount
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", tx.CreatedAt.Local().Format("2006-01-02 15:04"), amount, tx.Kind, tx.Description)
	}
	return w.Flush()
}

func (c *cli) audit(ctx context.Context) error {
	report, err := c.app.Ledger.Audit(ctx, c.account)
	if err != nil {
		return err
	}
	status := "consistent"
	if !report.Consistent {
		status = "INCONSISTENT"
	}
	fmt.Fprintf(c.out, "balance: %d, ledger sum: %d, transactions: %d, %s\n",
		report.Balance, report.LedgerSum, report.TransactionCount, status)
	return nil
}

// token выпускает токен для ручных запросов к серверу, тем же секретом, что проверяет сервер
func (c *cli) token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: token needs an account id", errUsage)
	}
	if c.secret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}

	token, err := security.NewToken(fs.Arg(0), c.secret, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	return nil
}
