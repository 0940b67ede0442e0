// internal/bot/handler.go
package bot

import (
	"context"
	"discord-video-bot/internal/logging"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxAttachmentBytes = 64 << 10
	maxMessageLength   = 2000
	greetWindow        = 2 * time.Minute
)

// BotHandler adapts discordgo events to Commands.
type BotHandler struct {
	ctx      context.Context
	commands *Commands
	session  *discordgo.Session
	botID    string
	wg       sync.WaitGroup
}

// NewBotHandler returns a handler whose commands run under ctx; cancel it
// to stop in-flight polling.
func NewBotHandler(ctx context.Context, commands *Commands) *BotHandler {
	return &BotHandler{ctx: ctx, commands: commands}
}

func (h *BotHandler) SetSession(s *discordgo.Session) {
	h.session = s
	user, err := s.User("@me")
	if err != nil {
		log.Error().Err(err).Msg("Error getting bot user")
		return
	}
	h.botID = user.ID
}

// Wait blocks until every command started by the handler has returned.
func (h *BotHandler) Wait() {
	h.wg.Wait()
}

func (h *BotHandler) OnMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == h.botID {
		return
	}
	// Commands are scoped to a guild.
	if m.GuildID == "" {
		return
	}

	name, args, ok := ParseCommand(m.Content)
	if !ok || !h.commands.Known(name) {
		return
	}

	groupID, err := parseSnowflake(m.GuildID)
	if err != nil {
		return
	}
	userID, err := parseSnowflake(m.Author.ID)
	if err != nil {
		return
	}

	inv := Invocation{GroupID: groupID, UserID: userID, Command: name, Args: args}
	ctx, _ := logging.WithRequest(h.ctx, log.Logger, map[string]any{
		"command":  name,
		"guild_id": m.GuildID,
		"user_id":  m.Author.ID,
	})
	responder := &discordResponder{session: s, channelID: m.ChannelID, reference: m.Reference()}

	// Polling can take a minute; never hold the gateway goroutine.
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		if name == "reference" && len(m.Attachments) > 0 {
			att, err := h.download(ctx, m.Attachments[0])
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Msg("download attachment")
				_ = responder.Text(ctx, "Could not read the uploaded file.")
				return
			}
			inv.Attachment = att
		}

		if err := h.commands.Dispatch(ctx, inv, responder); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("send reply")
		}
	}()
}

// OnGuildCreate records the guild and greets it when the bot was just added.
func (h *BotHandler) OnGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	groupID, err := parseSnowflake(g.ID)
	if err != nil {
		return
	}

	logger := log.With().Str("guild_id", g.ID).Str("guild_name", g.Name).Logger()
	if err := h.commands.RegisterGroup(logger.WithContext(h.ctx), groupID, g.Name); err != nil {
		logger.Error().Err(err).Msg("register group")
		return
	}

	// GuildCreate also fires for every guild on reconnect.
	if g.JoinedAt.IsZero() || time.Since(g.JoinedAt) > greetWindow {
		return
	}
	logger.Info().Msg("bot added to group")
	if g.SystemChannelID != "" {
		if _, err := s.ChannelMessageSend(g.SystemChannelID, fmt.Sprintf("Hello! I've been added to %s.", g.Name)); err != nil {
			logger.Warn().Err(err).Msg("send greeting")
		}
	}
}

func (h *BotHandler) download(ctx context.Context, a *discordgo.MessageAttachment) (*Attachment, error) {
	att := &Attachment{Filename: a.Filename, ContentType: a.ContentType}
	if a.Size > maxAttachmentBytes {
		// Oversized files are rejected by the command as invalid content.
		return att, nil
	}

	client := http.DefaultClient
	if h.session != nil && h.session.Client != nil {
		client = h.session.Client
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: http %d", a.Filename, resp.StatusCode)
	}

	att.Data, err = io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return nil, err
	}
	return att, nil
}

// ParseCommand splits "/name@Bot arg1 arg2" into a lower-case name and its
// arguments.
func ParseCommand(content string) (name string, args []string, ok bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

func parseSnowflake(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}

type discordResponder struct {
	session   *discordgo.Session
	channelID string
	reference *discordgo.MessageReference
}

func (r *discordResponder) Text(ctx context.Context, msg string) error {
	for _, chunk := range splitMessage(msg, maxMessageLength) {
		if _, err := r.session.ChannelMessageSendReply(r.channelID, chunk, r.reference, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

// Video posts the url; Discord renders an inline player for mp4 links.
func (r *discordResponder) Video(ctx context.Context, url string) error {
	_, err := r.session.ChannelMessageSendReply(r.channelID, url, r.reference, discordgo.WithContext(ctx))
	return err
}

// splitMessage cuts msg into pieces of at most limit bytes, preferring line
// breaks.
func splitMessage(msg string, limit int) []string {
	if len(msg) <= limit {
		return []string{msg}
	}
	var out []string
	for len(msg) > limit {
		cut := strings.LastIndexByte(msg[:limit], '\n')
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}
		out = append(out, msg[:cut])
		msg = strings.TrimLeft(msg[cut:], "\n")
	}
	if msg != "" {
		out = append(out, msg)
	}
	return out
}
