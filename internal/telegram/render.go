package telegram

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xiliaf09/tgbotv4/internal/helpers"
	"github.com/xiliaf09/tgbotv4/internal/telemetry"
	"github.com/xiliaf09/tgbotv4/internal/zerox"
)

var oneEthWei = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// sendTokenCard replies with token metadata, an indicative 1 ETH price, a
// rough market cap, and the buy/sell keyboards. Price lookups are best
// effort; the card degrades field by field rather than failing.
func (c *Controller) sendTokenCard(ctx context.Context, chatID int64, token common.Address) {
	info, err := c.wallet.TokenInfo(ctx, token)
	if err != nil {
		c.reply(chatID, fmt.Sprintf("❌ Not a token contract: `%s`", token.Hex()))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🪙 *%s* (%s)\n`%s`\nDecimals: %d\nSlippage: %s\n",
		info.Name, info.Symbol, token.Hex(), info.Decimals, c.cfg.SLIPPAGE)

	tokensPerEth := c.tokensPerEth(ctx, token)
	if tokensPerEth != nil {
		fmt.Fprintf(&sb, "\n💱 1 ETH ≈ %s %s\n",
			helpers.FormatTokenAmount(tokensPerEth, info.Decimals), info.Symbol)

		if mcap, ok := c.estimateMarketCap(ctx, info.TotalSupply, tokensPerEth); ok {
			fmt.Fprintf(&sb, "📊 Market cap ≈ %s\n", helpers.FormatUSD(mcap))
		}
	} else {
		sb.WriteString("\n💱 No price available\n")
	}

	balance, err := c.wallet.BalanceOf(ctx, token)
	if err != nil {
		balance = big.NewInt(0)
	}
	if balance.Sign() > 0 {
		fmt.Fprintf(&sb, "\n👛 Your balance: %s %s\n",
			helpers.FormatTokenAmount(balance, info.Decimals), info.Symbol)
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = c.tokenKeyboard(token, balance.Sign() > 0)
	_, _ = c.bot.Send(msg)
}

// tokensPerEth asks for an indicative quote selling exactly 1 ETH.
func (c *Controller) tokensPerEth(ctx context.Context, token common.Address) *big.Int {
	price, err := c.prices.GetPrice(ctx, zerox.Request{
		SellToken:  c.native,
		BuyToken:   token,
		SellAmount: oneEthWei,
		Taker:      c.wallet.Address(),
		Slippage:   c.cfg.SLIPPAGE,
	})
	if err != nil {
		telemetry.Debugf("[telegram] price lookup for %s failed: %v", token.Hex(), err)
		return nil
	}
	out, ok := new(big.Int).SetString(price.BuyAmount, 10)
	if !ok || out.Sign() == 0 {
		return nil
	}
	return out
}

// estimateMarketCap prices the total supply through the 1 ETH quote and the
// current ETH/USDC rate. Rough by construction; display only.
func (c *Controller) estimateMarketCap(ctx context.Context, totalSupply, tokensPerEth *big.Int) (float64, bool) {
	if totalSupply == nil || totalSupply.Sign() == 0 || c.usdc == (common.Address{}) {
		return 0, false
	}
	price, err := c.prices.GetPrice(ctx, zerox.Request{
		SellToken:  c.native,
		BuyToken:   c.usdc,
		SellAmount: oneEthWei,
		Taker:      c.wallet.Address(),
		Slippage:   c.cfg.SLIPPAGE,
	})
	if err != nil {
		return 0, false
	}
	usdcOut, ok := new(big.Int).SetString(price.BuyAmount, 10)
	if !ok || usdcOut.Sign() == 0 {
		return 0, false
	}

	// supply / tokensPerEth = ETH valuation of the supply; scale by USD/ETH.
	ethUSD, _ := new(big.Float).Quo(
		new(big.Float).SetInt(usdcOut),
		big.NewFloat(1e6),
	).Float64()

	supplyEth, _ := new(big.Float).Quo(
		new(big.Float).SetInt(totalSupply),
		new(big.Float).SetInt(tokensPerEth),
	).Float64()

	return supplyEth * ethUSD, true
}

func (c *Controller) tokenKeyboard(token common.Address, hasBalance bool) tgbotapi.InlineKeyboardMarkup {
	addr := token.Hex()

	var buyRow []tgbotapi.InlineKeyboardButton
	for _, preset := range c.cfg.BUY_PRESETS {
		buyRow = append(buyRow, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("💰 %s ETH", preset),
			fmt.Sprintf("buy_%s_%s", addr, preset),
		))
	}
	customRow := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("✏️ Custom amount", fmt.Sprintf("buycustom_%s", addr)),
		tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("⚙️ Slippage %s", c.cfg.SLIPPAGE),
			fmt.Sprintf("slippage_%s", addr),
		),
	}

	rows := [][]tgbotapi.InlineKeyboardButton{buyRow, customRow}

	if hasBalance {
		var sellRow []tgbotapi.InlineKeyboardButton
		for _, pct := range c.cfg.SELL_PRESETS {
			sellRow = append(sellRow, tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("📉 Sell %d%%", pct),
				fmt.Sprintf("sell_%s_%d", addr, pct),
			))
		}
		rows = append(rows, sellRow)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
