package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/EgorLis/multibot/internal/users"
)

const (
	defaultTop = 10
	maxTop     = 50
)

// сплит с поддержкой кавычек: !cmd "два слова" 3
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// команды только для владельца
var ownerOnly = map[string]bool{
	"topusers":      true,
	"setpremium":    true,
	"unsetpremium":  true,
	"premiumlist":   true,
	"addcredits":    true,
	"deductcredits": true,
}

func (b *Bot) handleCommand(ctx context.Context, m Message, text string) {
	fields := splitArgs(text[len(b.prefix):])
	if len(fields) == 0 {
		b.unknown(ctx, m, "")
		return
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	id := m.From.ID

	if ownerOnly[cmd] && !b.isOwner(id) {
		b.log.Warn(ctx, "owner command denied", "user", id, "command", cmd)
		b.unknown(ctx, m, cmd)
		return
	}

	say := func(s string) { b.reply(ctx, m.ChatID, s, false) }
	sayMD := func(s string) { b.reply(ctx, m.ChatID, s, true) }

	switch cmd {
	case "p":
		say("Prefix: " + b.prefix)

	case "test":
		say("🏓 Pong!")

	case "ping":
		say("Pong! 🎯")

	case "menu", "help":
		sayMD(b.helpText(b.isOwner(id)))

	case "info":
		sayMD(strings.Join([]string{
			"ℹ️ *Bot Information*",
			"- Name: " + Name,
			"- Version: " + Version,
			"- Prefix: " + md(b.prefix),
			"- Status: Active",
			fmt.Sprintf("- Total Users: %d", b.store.TotalUsers()),
			fmt.Sprintf("- Premium Users: %d", b.store.PremiumUsers()),
			"- Your ID: " + id,
		}, "\n"))

	case "time":
		say("🕐 Current time: " + b.now().Format("2006-01-02 15:04:05"))

	case "myid":
		sayMD("🆔 Your Telegram ID: `" + id + "`")

	case "premium":
		rec, _ := b.store.GetStats(id)
		if rec.Premium {
			sayMD("🎉 *You are a Premium user!*\n📅 Since: " + day(rec.PremiumSince))
		} else {
			sayMD("❌ *You are not a Premium user*\nContact the owner to upgrade!")
		}

	case "stats":
		rec, ok := b.store.GetStats(id)
		if !ok {
			say("❌ No data found!")
			break
		}
		sayMD(b.statsText(m.From, rec))

	case "credits":
		rec, _ := b.store.GetStats(id)
		say(fmt.Sprintf("💰 Credits: %d", rec.Credits))

	// ---------- OWNER ----------
	case "topusers":
		limit := defaultTop
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				say("❌ Usage: " + b.prefix + "topusers [n]")
				break
			}
			limit = min(n, maxTop)
		}
		sayMD(topText(b.store.TopUsers(limit), limit))

	case "setpremium", "unsetpremium":
		if len(args) < 1 {
			say("❌ Usage: " + b.prefix + cmd + " <user_id>")
			break
		}
		on := cmd == "setpremium"
		err := b.store.SetPremium(ctx, args[0], on)
		switch {
		case err == nil && on:
			say("✅ User " + args[0] + " is now Premium!")
		case err == nil:
			say("✅ User " + args[0] + " is no longer Premium.")
		default:
			say(b.storeError(err, args[0]))
		}

	case "premiumlist":
		list := b.store.ListPremium()
		if len(list) == 0 {
			say("❌ No premium users yet!")
			break
		}
		sayMD(premiumText(list))

	case "addcredits", "deductcredits":
		if len(args) < 2 {
			say("❌ Usage: " + b.prefix + cmd + " <user_id> <amount>")
			break
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			say(b.storeError(users.ErrInvalidAmount, args[0]))
			break
		}
		var bal int64
		if cmd == "addcredits" {
			bal, err = b.store.AddCredits(ctx, args[0], amount)
		} else {
			bal, err = b.store.DeductCredits(ctx, args[0], amount)
		}
		if err != nil {
			say(b.storeError(err, args[0]))
			break
		}
		say(fmt.Sprintf("✅ User %s balance: %d credits", args[0], bal))

	default:
		b.unknown(ctx, m, cmd)
		return
	}
	b.metrics.Command(cmd)
}

func (b *Bot) unknown(ctx context.Context, m Message, cmd string) {
	b.reply(ctx, m.ChatID, fmt.Sprintf("❌ Unknown command %q. Type %shelp for help.", cmd, b.prefix), false)
}

// storeError переводит ошибку стора в ответ владельцу.
func (b *Bot) storeError(err error, id string) string {
	switch {
	case errors.Is(err, users.ErrInvalidIdentity):
		return "❌ Invalid user id: " + id
	case errors.Is(err, users.ErrNotFound):
		return "❌ User " + id + " not found!"
	case errors.Is(err, users.ErrInvalidAmount):
		return "❌ Amount must be a non-negative integer"
	case errors.Is(err, users.ErrInsufficientCredits):
		rec, _ := b.store.GetStats(id)
		return fmt.Sprintf("❌ Insufficient credits: balance is %d", rec.Credits)
	default:
		return "❌ Error: " + err.Error()
	}
}

func (b *Bot) handleStart(ctx context.Context, m Message, rec users.Record) {
	status := "❌ Regular User"
	if rec.Premium {
		status = "✅ Premium User"
	}
	p := md(b.prefix)
	b.reply(ctx, m.ChatID, strings.Join([]string{
		"👋 *Welcome " + md(m.From.FirstName) + "!*",
		"",
		"📊 *Your stats:*",
		"🆔 ID: `" + string(rec.ID) + "`",
		"📛 Status: " + status,
		fmt.Sprintf("📨 Total messages: %d", rec.TotalMessages),
		fmt.Sprintf("💰 Credits: %d", rec.Credits),
		"📅 Joined: " + day(rec.FirstSeen),
		"",
		"Put `" + b.prefix + "` in front of a command.",
		"",
		"Examples:",
		p + "test - Test the bot",
		p + "help - Help",
		p + "stats - Your stats",
		"",
		"The bot is ready!",
	}, "\n"), true)
}

func (b *Bot) helpText(owner bool) string {
	p := md(b.prefix)
	rows := []string{
		"🤖 *Commands:*",
		p + "p - Show the prefix",
		p + "test - Test bot response",
		p + "menu - Show this help",
		p + "info - Bot info",
		p + "time - Current time",
		p + "ping - Test ping",
		p + "stats - Your stats",
		p + "myid - Your ID",
		p + "premium - Premium status",
		p + "credits - Your credits",
	}
	if owner {
		rows = append(rows,
			"",
			"*👑 Owner Commands:*",
			p+"topusers \\[n] - Top users",
			p+"setpremium <id> - Grant premium",
			p+"unsetpremium <id> - Revoke premium",
			p+"premiumlist - Premium users",
			p+"addcredits <id> <n> - Add credits",
			p+"deductcredits <id> <n> - Deduct credits",
		)
	}
	return strings.Join(rows, "\n")
}

func (b *Bot) statsText(who users.Identity, rec users.Record) string {
	status := "❌ Regular"
	if rec.Premium {
		status = "✅ Premium"
	}
	handle := "No username"
	if rec.Username != "" {
		handle = "@" + rec.Username
	}
	last := "unknown"
	if len(rec.LastSeen) >= 16 {
		last = rec.LastSeen[:16]
	}
	return strings.Join([]string{
		"📊 *Stats for " + md(who.FirstName) + "*",
		"",
		"🆔 ID: `" + string(rec.ID) + "`",
		"👤 Username: " + md(handle),
		"📛 Status: " + status,
		fmt.Sprintf("📨 Total messages: %d", rec.TotalMessages),
		fmt.Sprintf("💰 Credits: %d", rec.Credits),
		"📅 Joined: " + day(rec.FirstSeen),
		"⏰ Last seen: " + last,
	}, "\n")
}

func topText(top []users.TopUser, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 *TOP %d USERS*\n", limit)
	for i, u := range top {
		badge := ""
		if u.Premium {
			badge = " 👑"
		}
		fmt.Fprintf(&sb, "\n%d. %s%s%s\n", i+1, md(u.Name), handleSuffix(u.Username), badge)
		fmt.Fprintf(&sb, "   📨 %d messages\n", u.TotalMessages)
		fmt.Fprintf(&sb, "   📅 %s\n", day(u.FirstSeen))
	}
	return sb.String()
}

func premiumText(list []users.PremiumSummary) string {
	var sb strings.Builder
	sb.WriteString("👑 *PREMIUM USERS*\n")
	for i, u := range list {
		fmt.Fprintf(&sb, "\n%d. %s%s\n", i+1, md(u.Name), handleSuffix(u.Username))
		fmt.Fprintf(&sb, "   📅 Premium since: %s\n", day(u.PremiumSince))
	}
	return sb.String()
}

func handleSuffix(username string) string {
	if username == "" {
		return ""
	}
	return " (@" + md(username) + ")"
}

// md экранирует пользовательский текст для Markdown.
func md(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// day - дата из RFC 3339 метки.
func day(ts string) string {
	if len(ts) < 10 {
		return "unknown"
	}
	return ts[:10]
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}
