package telegram

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xiliaf09/tgbotv4/internal/config"
	"github.com/xiliaf09/tgbotv4/internal/helpers"
	"github.com/xiliaf09/tgbotv4/internal/swap"
	"github.com/xiliaf09/tgbotv4/internal/telemetry"
	"github.com/xiliaf09/tgbotv4/internal/wallet"
	"github.com/xiliaf09/tgbotv4/internal/zerox"
)

// sender is the slice of the bot API the handlers use. Keeping it narrow
// lets the handlers run against a recorder in tests.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Swapper executes one swap to completion and reports the terminal result.
type Swapper interface {
	Execute(ctx context.Context, req swap.Request) swap.Result
}

// PriceService serves indicative prices for the token card.
type PriceService interface {
	GetPrice(ctx context.Context, req zerox.Request) (*zerox.Price, error)
}

// WalletReader is the read-only wallet surface the chat handlers need.
type WalletReader interface {
	Address() common.Address
	BalanceOf(ctx context.Context, token common.Address) (*big.Int, error)
	TokenInfo(ctx context.Context, token common.Address) (*wallet.TokenInfo, error)
}

type Controller struct {
	bot sender
	api *tgbotapi.BotAPI
	cfg *config.Config

	swapper Swapper
	prices  PriceService
	wallet  WalletReader

	native common.Address
	usdc   common.Address

	authorized map[int64]bool

	mu         sync.Mutex
	pendingBuy map[int64]common.Address // users awaiting a custom buy amount
	busy       map[int64]bool           // users with a swap in flight
}

func NewController(cfg *config.Config, swapper Swapper, prices PriceService, w WalletReader) (*Controller, error) {
	if cfg.TELEGRAM_TOKEN == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.TELEGRAM_TOKEN)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}

	c := newController(cfg, bot, swapper, prices, w)
	c.api = bot
	telemetry.Infof("[telegram] authorized as @%s (%d allowed users)", bot.Self.UserName, len(c.authorized))
	return c, nil
}

func newController(cfg *config.Config, bot sender, swapper Swapper, prices PriceService, w WalletReader) *Controller {
	c := &Controller{
		bot:        bot,
		cfg:        cfg,
		swapper:    swapper,
		prices:     prices,
		wallet:     w,
		native:     common.HexToAddress(cfg.NATIVE_TOKEN),
		usdc:       common.HexToAddress(cfg.USDC_TOKEN),
		authorized: make(map[int64]bool),
		pendingBuy: make(map[int64]common.Address),
		busy:       make(map[int64]bool),
	}
	for _, id := range cfg.AUTHORIZED_USERS {
		c.authorized[id] = true
	}
	return c
}

// Start consumes the long-poll update channel until the context is done.
func (c *Controller) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := c.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			c.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate is the single dispatch point: button callback, command, or
// free text, in that order.
func (c *Controller) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if q.Message == nil {
			return
		}
		if !c.isAuthorized(q.From.ID) {
			telemetry.Warnf("[telegram] callback from unauthorized user %d", q.From.ID)
			c.reply(q.Message.Chat.ID, "⛔ You are not authorized to use this bot.")
			return
		}
		_, _ = c.bot.Request(tgbotapi.NewCallback(q.ID, ""))
		c.handleCallback(ctx, q.Message.Chat.ID, q.From.ID, q.Data)
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			return
		}
		if !c.isAuthorized(msg.From.ID) {
			telemetry.Warnf("[telegram] message from unauthorized user %d", msg.From.ID)
			c.reply(msg.Chat.ID, "⛔ You are not authorized to use this bot.")
			return
		}
		text := strings.TrimSpace(msg.Text)
		if strings.HasPrefix(text, "/") {
			c.handleCommand(ctx, msg.Chat.ID, msg.From.ID, text)
		} else if text != "" {
			c.handleText(ctx, msg.Chat.ID, msg.From.ID, text)
		}
	}
}

// Empty allow-list means everyone is allowed.
func (c *Controller) isAuthorized(userID int64) bool {
	if len(c.authorized) == 0 {
		return true
	}
	return c.authorized[userID]
}

func (c *Controller) handleCommand(ctx context.Context, chatID, userID int64, text string) {
	switch {
	case strings.HasPrefix(text, "/start"):
		c.reply(chatID, fmt.Sprintf(
			"👋 *Welcome!*\n\nWallet: `%s`\nChain ID: `%d`\nSlippage: `%s`\n\n"+
				"Paste a token address to trade, or use /help.",
			c.wallet.Address().Hex(), c.cfg.CHAIN_ID, c.cfg.SLIPPAGE))
	case strings.HasPrefix(text, "/help"):
		c.reply(chatID,
			"*Commands:*\n\n"+
				"💰 /balance – wallet balances\n"+
				"📉 /sell <token> <pct> – sell a percentage of a token\n"+
				"🪵 /logs [n] – show last n log lines (default 50)\n"+
				"🐞 /debug on|off – toggle debug logs\n"+
				"⚙️ /config – show non-secret config\n\n"+
				"Paste a token address to get a card with buy buttons.")
	case strings.HasPrefix(text, "/balance"):
		c.cmdBalance(ctx, chatID)
	case strings.HasPrefix(text, "/sell "):
		c.cmdSell(ctx, chatID, userID, text)
	case strings.HasPrefix(text, "/logs"):
		c.cmdLogs(chatID, text)
	case strings.HasPrefix(text, "/debug "):
		arg := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(text, "/debug")))
		on := arg == "on" || arg == "1" || arg == "true"
		telemetry.EnableDebug(on)
		c.reply(chatID, fmt.Sprintf("✅ debug: %v", on))
	case strings.HasPrefix(text, "/config"):
		c.cmdConfig(chatID)
	default:
		// unknown commands are ignored to keep the chat quiet
	}
}

// handleText resolves the two-state machine: a user with a pending custom
// buy is interpreted as typing an amount; everyone else is assumed to be
// pasting a token address.
func (c *Controller) handleText(ctx context.Context, chatID, userID int64, text string) {
	c.mu.Lock()
	token, waiting := c.pendingBuy[userID]
	c.mu.Unlock()

	if waiting {
		amount, err := helpers.ParseEthAmount(text)
		if err != nil {
			c.reply(chatID, "❌ Invalid amount. Send a number like `0.05` (min 0.00001 ETH).")
			return
		}
		if amount.Cmp(helpers.MinBuyAmountWei) < 0 {
			c.reply(chatID, "❌ Amount too small. Minimum is 0.00001 ETH. Try again.")
			return
		}
		c.mu.Lock()
		delete(c.pendingBuy, userID)
		c.mu.Unlock()
		c.launchBuy(ctx, chatID, userID, token, amount)
		return
	}

	if common.IsHexAddress(text) {
		c.sendTokenCard(ctx, chatID, common.HexToAddress(text))
		return
	}
	c.reply(chatID, "ℹ️ Paste a token address or use /help.")
}

func (c *Controller) handleCallback(ctx context.Context, chatID, userID int64, data string) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) < 2 || !common.IsHexAddress(parts[1]) {
		telemetry.Debugf("[telegram] malformed callback data %q", data)
		return
	}
	token := common.HexToAddress(parts[1])

	switch parts[0] {
	case "buy":
		if len(parts) != 3 {
			return
		}
		amount, err := helpers.ParseEthAmount(parts[2])
		if err != nil {
			c.reply(chatID, "❌ Invalid preset amount")
			return
		}
		c.launchBuy(ctx, chatID, userID, token, amount)
	case "buycustom":
		c.mu.Lock()
		c.pendingBuy[userID] = token
		c.mu.Unlock()
		c.reply(chatID, fmt.Sprintf("✏️ How much ETH for `%s`?\nSend an amount like `0.05` (min 0.00001).",
			helpers.FormatAddress(token)))
	case "sell":
		if len(parts) != 3 {
			return
		}
		pct, err := strconv.Atoi(parts[2])
		if err != nil || helpers.ValidatePercentage(pct) != nil {
			c.reply(chatID, "❌ Invalid sell percentage")
			return
		}
		c.launchSell(ctx, chatID, userID, token, pct)
	case "slippage":
		c.reply(chatID, fmt.Sprintf(
			"⚙️ Slippage tolerance is `%s` (%.1f%%).\nChange SLIPPAGE in config.yml to adjust.",
			c.cfg.SLIPPAGE, slippagePct(c.cfg.SLIPPAGE)))
	default:
		telemetry.Debugf("[telegram] unknown callback kind %q", parts[0])
	}
}

func (c *Controller) cmdSell(ctx context.Context, chatID, userID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) < 3 {
		c.reply(chatID, "📝 Usage: /sell <token_address> <percentage>\nExample: /sell 0x... 50")
		return
	}
	token, err := helpers.ValidateAddress(parts[1])
	if err != nil {
		c.reply(chatID, "❌ Invalid token address")
		return
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(parts[2], "%"))
	if err != nil {
		c.reply(chatID, "❌ Invalid percentage")
		return
	}
	if err := helpers.ValidatePercentage(pct); err != nil {
		c.reply(chatID, fmt.Sprintf("❌ %v", err))
		return
	}
	c.launchSell(ctx, chatID, userID, token, pct)
}

func (c *Controller) launchBuy(ctx context.Context, chatID, userID int64, token common.Address, amountWei *big.Int) {
	if !c.acquire(userID) {
		c.reply(chatID, "⏳ Another swap is already running. Wait for it to finish.")
		return
	}
	c.reply(chatID, fmt.Sprintf("🔄 Buying `%s` with %s ETH...",
		helpers.FormatAddress(token), helpers.FormatEth(amountWei)))

	go func() {
		defer c.release(userID)
		res := c.swapper.Execute(ctx, swap.Request{
			SellToken:  c.native,
			BuyToken:   token,
			SellAmount: amountWei,
			Slippage:   c.cfg.SLIPPAGE,
		})
		c.reportResult(chatID, res, fmt.Sprintf("Buy %s ETH of `%s`",
			helpers.FormatEth(amountWei), helpers.FormatAddress(token)))
	}()
}

func (c *Controller) launchSell(ctx context.Context, chatID, userID int64, token common.Address, pct int) {
	if !c.acquire(userID) {
		c.reply(chatID, "⏳ Another swap is already running. Wait for it to finish.")
		return
	}

	balance, err := c.wallet.BalanceOf(ctx, token)
	if err != nil {
		c.release(userID)
		c.reply(chatID, fmt.Sprintf("❌ Could not read token balance: %v", err))
		return
	}
	if balance.Sign() == 0 {
		c.release(userID)
		c.reply(chatID, "❌ No tokens to sell")
		return
	}
	amount := helpers.PercentageOf(balance, pct)
	if amount.Sign() == 0 {
		c.release(userID)
		c.reply(chatID, "❌ Balance too small to sell that percentage")
		return
	}

	c.reply(chatID, fmt.Sprintf("🔄 Selling %d%% of `%s` (%s base units)...",
		pct, helpers.FormatAddress(token), amount.String()))

	go func() {
		defer c.release(userID)
		res := c.swapper.Execute(ctx, swap.Request{
			SellToken:  token,
			BuyToken:   c.native,
			SellAmount: amount,
			Slippage:   c.cfg.SLIPPAGE,
		})
		c.reportResult(chatID, res, fmt.Sprintf("Sell %d%% of `%s`", pct, helpers.FormatAddress(token)))
	}()
}

func (c *Controller) acquire(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[userID] {
		return false
	}
	c.busy[userID] = true
	return true
}

func (c *Controller) release(userID int64) {
	c.mu.Lock()
	delete(c.busy, userID)
	c.mu.Unlock()
}

func (c *Controller) reportResult(chatID int64, res swap.Result, label string) {
	if !res.Success {
		c.reply(chatID, "❌ "+swap.Classify(res.Err))
		return
	}
	note := ""
	if res.Replaced {
		note = "\n⚠️ Original tx was replaced; the replacement succeeded."
	}
	c.reply(chatID, fmt.Sprintf(
		"✅ *Swap executed*\n%s\nTx: `%s`\nBlock: %d\nGas used: %d%s",
		label, helpers.FormatTxHash(res.TxHash), res.BlockNumber, res.GasUsed, note))
}

func (c *Controller) cmdBalance(ctx context.Context, chatID int64) {
	ethBal, err := c.wallet.BalanceOf(ctx, c.native)
	if err != nil {
		c.reply(chatID, fmt.Sprintf("❌ Failed to get balance: %v", err))
		return
	}
	msg := fmt.Sprintf("💰 *Wallet*\nAddress: `%s`\nETH: %s",
		c.wallet.Address().Hex(), helpers.FormatEth(ethBal))

	if c.usdc != (common.Address{}) {
		if usdcBal, err := c.wallet.BalanceOf(ctx, c.usdc); err == nil {
			msg += fmt.Sprintf("\nUSDC: %s", helpers.FormatTokenAmount(usdcBal, 6))
		}
	}
	c.reply(chatID, msg)
}

func (c *Controller) cmdLogs(chatID int64, text string) {
	n := 50
	parts := strings.Fields(text)
	if len(parts) > 1 {
		fmt.Sscan(parts[1], &n)
		if n <= 0 {
			n = 50
		}
		if n > 500 {
			n = 500
		}
	}
	lines := telemetry.Tail(n)
	if len(lines) == 0 {
		c.reply(chatID, "ℹ️ log buffer empty")
		return
	}
	// Telegram caps messages around 4096 chars; chunk conservatively.
	var buf strings.Builder
	for _, ln := range lines {
		if buf.Len()+len(ln)+1 > 3500 {
			c.reply(chatID, "```\n"+buf.String()+"\n```")
			buf.Reset()
		}
		buf.WriteString(ln)
		buf.WriteByte('\n')
	}
	if buf.Len() > 0 {
		c.reply(chatID, "```\n"+buf.String()+"\n```")
	}
}

func (c *Controller) cmdConfig(chatID int64) {
	users := "all (empty allow-list)"
	if len(c.cfg.AUTHORIZED_USERS) > 0 {
		users = fmt.Sprintf("%d configured", len(c.cfg.AUTHORIZED_USERS))
	}
	c.reply(chatID, fmt.Sprintf(
		"*Configuration:*\n\n"+
			"Chain ID: `%d`\n"+
			"Wallet: `%s`\n"+
			"Slippage: `%s`\n"+
			"Buy presets: `%s`\n"+
			"Sell presets: `%v`\n"+
			"Allowed users: %s",
		c.cfg.CHAIN_ID,
		c.wallet.Address().Hex(),
		c.cfg.SLIPPAGE,
		strings.Join(c.cfg.BUY_PRESETS, ", "),
		c.cfg.SELL_PRESETS,
		users,
	))
}

func slippagePct(fraction string) float64 {
	f, err := strconv.ParseFloat(fraction, 64)
	if err != nil {
		return 0
	}
	return f * 100
}

func (c *Controller) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, _ = c.bot.Send(msg)
}
