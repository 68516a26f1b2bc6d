package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/defi-liquidity-adapter-go/cmd/client/config"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"github.com/defistate/defi-liquidity-adapter-go/streams/jsonrpc/client"
	"github.com/defistate/defi-liquidity-adapter-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	callTimeout = 10 * time.Second
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// console holds what the command handlers share.
type console struct {
	client *client.Client
	tokens *token.IndexableTokenSystem
	reader *bufio.Reader
	pools  *poolregistry.IndexablePoolRegistry
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. CONFIG & CONTEXT ---
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		closeApp()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. CONNECT ---
	fmt.Println(Green + "Connecting to " + cfg.RPCURL + "..." + Reset)
	c, err := client.Dial(ctx, client.Config{
		URL:    cfg.RPCURL,
		Logger: rootLogger.With("component", "jsonrpc-client"),
	})
	if err != nil {
		rootLogger.Error("Failed to connect", "url", cfg.RPCURL, "error", err)
		closeApp()
	}
	defer c.Close()

	con := &console{
		client: c,
		tokens: token.New().Index(cfg.Tokens),
		reader: bufio.NewReader(os.Stdin),
	}
	if err := con.refreshPools(ctx); err != nil {
		rootLogger.Error("Failed to list pools", "error", err)
		closeApp()
	}

	// --- 4. RUN CONSOLE ---
	fmt.Println("Logs are being written to 'console.log'")
	con.run(ctx)
	fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
}

// run handles user input and display.
func (con *console) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := con.reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)
		if input == "q" {
			fmt.Println(Yellow + "Exiting..." + Reset)
			return
		}

		con.handleCommand(ctx, input)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		con.reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "LIQUIDITY ADAPTER CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s List Pools\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Balance Of  %s(asset, holder)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s3.%s Approve     %s(asset, owner, spender)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Deposit\n", Cyan, Reset)
	fmt.Printf(" %s5.%s Redeem\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Encode Deposit %s(on-chain calldata)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (con *console) handleCommand(ctx context.Context, input string) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var err error
	switch input {
	case "1":
		err = con.listPools(ctx)
	case "2":
		err = con.balanceOf(ctx)
	case "3":
		err = con.approve(ctx)
	case "4":
		err = con.deposit(ctx)
	case "5":
		err = con.redeem(ctx)
	case "6":
		err = con.encodeDeposit(ctx)
	case "h":
		printHelp()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
	if err != nil {
		printError(err)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("LIQUIDITY ADAPTER")
	fmt.Println("Each pool holds two reserve assets, always listed in " + Cyan + "canonical order" + Reset)
	fmt.Println("(ascending address). Amount A is the first asset, amount B the second.")
	fmt.Println("")
	fmt.Println(Bold + "Deposit" + Reset)
	fmt.Println("   The adapter pulls exactly the amounts you give, approves the vault for exactly")
	fmt.Println("   those amounts and joins the pool. Shares are minted straight to you and any")
	fmt.Println("   amount the pool did not consume is returned in the same call.")
	fmt.Println("")
	fmt.Println(Bold + "Redeem" + Reset)
	fmt.Println("   The adapter pulls your shares and exits the pool for the pool's " + Yellow + "exit asset" + Reset + ".")
	fmt.Println("   The call fails unless at least the minimum amount is paid out.")
	fmt.Println("")
	fmt.Println(Bold + "Allowances" + Reset)
	fmt.Println("   Before depositing, approve the adapter address for both reserve assets.")
	fmt.Println("   Before redeeming, approve it for the share token (the pool address).")
	fmt.Println("")
	fmt.Println(Gray + "Amounts accept decimal or 0x-prefixed hex base units." + Reset)
}

func (con *console) refreshPools(ctx context.Context) error {
	pools, err := con.client.Pools(ctx)
	if err != nil {
		return err
	}
	con.pools = poolregistry.New().Index(pools)
	return nil
}

func (con *console) listPools(ctx context.Context) error {
	if err := con.refreshPools(ctx); err != nil {
		return err
	}
	header("POOLS")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ID\tPOOL ID\tASSET A\tASSET B\tEXIT\t")
	fmt.Fprintln(w, "--\t-------\t-------\t-------\t----\t")
	for _, p := range con.pools.All() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n",
			p.ID, p.Key,
			con.tokens.Label(p.Assets[0]),
			con.tokens.Label(p.Assets[1]),
			con.tokens.Label(p.Assets[p.ExitTokenIndex]),
		)
	}
	return w.Flush()
}

func (con *console) balanceOf(ctx context.Context) error {
	asset, err := con.readAsset("Asset (symbol or address)")
	if err != nil {
		return err
	}
	holder, err := con.readAddress("Holder")
	if err != nil {
		return err
	}
	bal, err := con.client.BalanceOf(ctx, asset, holder)
	if err != nil {
		return err
	}
	fmt.Printf("%sBalance:%s %s %s\n", Green, Reset, bal, con.tokens.Label(asset))
	return nil
}

func (con *console) approve(ctx context.Context) error {
	asset, err := con.readAsset("Asset (symbol or address)")
	if err != nil {
		return err
	}
	owner, err := con.readAddress("Owner")
	if err != nil {
		return err
	}
	spender, err := con.readAddress("Spender")
	if err != nil {
		return err
	}
	amount, err := con.readAmount("Amount")
	if err != nil {
		return err
	}
	if err := con.client.Approve(ctx, server.ApproveArgs{Asset: asset, Owner: owner, Spender: spender, Amount: amount}); err != nil {
		return err
	}
	fmt.Println(Green + "Allowance set." + Reset)
	return nil
}

func (con *console) readDepositArgs() (server.DepositArgs, error) {
	pool, err := con.readPool()
	if err != nil {
		return server.DepositArgs{}, err
	}
	args := server.DepositArgs{Pool: pool.Key}
	if args.Caller, err = con.readAddress("Caller"); err != nil {
		return args, err
	}
	if args.AmountA, err = con.readAmount("Amount of " + con.tokens.Label(pool.Assets[0])); err != nil {
		return args, err
	}
	if args.AmountB, err = con.readAmount("Amount of " + con.tokens.Label(pool.Assets[1])); err != nil {
		return args, err
	}
	if args.MinSharesOut, err = con.readAmount("Minimum shares out (empty for none)"); err != nil {
		return args, err
	}
	return args, nil
}

func (con *console) deposit(ctx context.Context) error {
	args, err := con.readDepositArgs()
	if err != nil {
		return err
	}
	reply, err := con.client.Deposit(ctx, args)
	if err != nil {
		return err
	}

	header("DEPOSIT SETTLED")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "ASSET\tCONSUMED\tREFUNDED\t")
	for i, asset := range reply.Assets {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", con.tokens.Label(asset), reply.AmountsIn[i].ToInt(), reply.Refunds[i].ToInt())
	}
	w.Flush()
	fmt.Printf("\n%sShares minted:%s %s\n", Bold, Reset, reply.SharesOut.ToInt())
	return nil
}

func (con *console) redeem(ctx context.Context) error {
	pool, err := con.readPool()
	if err != nil {
		return err
	}
	args := server.RedeemArgs{Pool: pool.Key}
	if args.Caller, err = con.readAddress("Caller"); err != nil {
		return err
	}
	if args.Shares, err = con.readAmount("Shares"); err != nil {
		return err
	}
	exit := con.tokens.Label(pool.Assets[pool.ExitTokenIndex])
	if args.MinAmountOut, err = con.readAmount("Minimum " + exit + " out (empty for none)"); err != nil {
		return err
	}
	reply, err := con.client.Redeem(ctx, args)
	if err != nil {
		return err
	}
	header("REDEMPTION SETTLED")
	fmt.Printf("Shares burned:   %s\n", reply.SharesIn.ToInt())
	fmt.Printf("Paid out:        %s%s %s%s\n", Green, reply.AmountOut.ToInt(), con.tokens.Label(reply.Asset), Reset)
	return nil
}

func (con *console) encodeDeposit(ctx context.Context) error {
	args, err := con.readDepositArgs()
	if err != nil {
		return err
	}
	calls, err := con.client.EncodeDeposit(ctx, args)
	if err != nil {
		return err
	}
	header("CALLS")
	for i, call := range calls {
		fmt.Printf("%s%d.%s to %s%s%s\n   %s\n", Cyan, i+1, Reset, Bold, con.tokens.Label(call.To), Reset, call.Data)
	}
	return nil
}

// --- HELPERS ---

func (con *console) readLine(prompt string) string {
	fmt.Print(Bold + prompt + ": " + Reset)
	input, _ := con.reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func (con *console) readAddress(prompt string) (common.Address, error) {
	input := con.readLine(prompt)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address %q", input)
	}
	return common.HexToAddress(input), nil
}

func (con *console) readAsset(prompt string) (common.Address, error) {
	input := con.readLine(prompt)
	if t, ok := con.tokens.GetBySymbol(input); ok {
		return t.Address, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("unknown token %q", input)
	}
	return common.HexToAddress(input), nil
}

// readAmount returns nil for empty input.
func (con *console) readAmount(prompt string) (*hexutil.Big, error) {
	input := con.readLine(prompt)
	if input == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(input, 0)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", input)
	}
	return (*hexutil.Big)(v), nil
}

// readPool accepts a registry id or a 32-byte pool id.
func (con *console) readPool() (poolregistry.PoolView, error) {
	input := con.readLine("Pool (registry id or pool id)")
	if id, err := strconv.ParseUint(input, 10, 64); err == nil {
		if p, ok := con.pools.GetByID(id); ok {
			return p, nil
		}
		return poolregistry.PoolView{}, fmt.Errorf("no pool with registry id %d", id)
	}
	key, err := poolregistry.ParsePoolID(input)
	if err != nil {
		return poolregistry.PoolView{}, err
	}
	if p, ok := con.pools.GetByPoolID(key); ok {
		return p, nil
	}
	return poolregistry.PoolView{}, fmt.Errorf("pool %s is not served", key)
}

func printError(err error) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		kind := "ERROR"
		switch rpcErr.ErrorCode() {
		case server.RejectedCode:
			kind = "REJECTED"
		case server.CustodyCode:
			kind = "CUSTODY"
		case server.InvalidParamsCode:
			kind = "INVALID"
		}
		fmt.Printf(Red+"[%s] %s%s\n", kind, rpcErr.Error(), Reset)
		return
	}
	fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
