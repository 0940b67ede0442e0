package bot

import (
	"context"
	"discord-video-bot/internal/generation"
	"discord-video-bot/internal/metrics"
	"discord-video-bot/internal/models"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Invocation is one command as received from the chat transport.
type Invocation struct {
	GroupID    int64
	UserID     int64
	Command    string // lower case, without the leading slash
	Args       []string
	Attachment *Attachment
}

// Attachment is a file sent along with a command, already downloaded.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Responder sends replies back to where the command came from.
type Responder interface {
	Text(ctx context.Context, msg string) error
	Video(ctx context.Context, url string) error
}

type Store interface {
	SetReference(ctx context.Context, groupID int64, refs string) error
	SetGroupLimit(ctx context.Context, groupID int64, limit int) error
	SetUserLimit(ctx context.Context, groupID int64, limit int) error
	UpsertGroup(ctx context.Context, groupID int64, name string) error
	ListGroups(ctx context.Context) ([]models.Group, error)
	RecentMemories(ctx context.Context, userID, groupID int64, limit int) ([]models.Memory, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, groupID, userID int64) error
}

type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
	Lookup(ctx context.Context, userID, groupID int64, memoryID int) (*models.Memory, error)
	Resume(ctx context.Context, userID, groupID int64, memoryID int) (*generation.Result, error)
}

type Searcher interface {
	SearchMemories(ctx context.Context, userID, groupID int64, query string, limit int) ([]models.Memory, error)
}

// Commands implements every bot command independently of the transport.
type Commands struct {
	adminID  int64
	history  int
	store    Store
	quota    Authorizer
	gen      Generator
	searcher Searcher
}

func NewCommands(adminID int64, history int, store Store, quota Authorizer, gen Generator, searcher Searcher) *Commands {
	if history < 1 {
		history = 5
	}
	return &Commands{
		adminID:  adminID,
		history:  history,
		store:    store,
		quota:    quota,
		gen:      gen,
		searcher: searcher,
	}
}

// Known reports whether name is a command this bot answers.
func (c *Commands) Known(name string) bool {
	_, ok := c.handlers()[name]
	return ok
}

func (c *Commands) handlers() map[string]func(context.Context, Invocation, Responder) error {
	return map[string]func(context.Context, Invocation, Responder) error{
		"start":     c.start,
		"help":      c.start,
		"imagine":   c.imagine,
		"memory":    c.memory,
		"reference": c.reference,
		"sgl":       c.setGroupLimit,
		"sul":       c.setUserLimit,
		"groups":    c.groups,
	}
}

// Dispatch runs inv and answers through r. Command errors are turned into
// a reply; the returned error is only set when that reply could not be
// delivered.
func (c *Commands) Dispatch(ctx context.Context, inv Invocation, r Responder) error {
	handler, ok := c.handlers()[inv.Command]
	if !ok {
		return nil
	}
	metrics.Commands.WithLabelValues(inv.Command).Inc()

	logger := zerolog.Ctx(ctx)
	err := handler(ctx, inv, r)
	if err == nil {
		return nil
	}

	msg, internal := userMessage(err)
	if internal {
		logger.Error().Err(err).Str("command", inv.Command).Msg("command failed")
	} else {
		logger.Debug().Err(err).Str("command", inv.Command).Msg("command rejected")
	}
	return r.Text(ctx, msg)
}

// RegisterGroup records a group the bot was added to.
func (c *Commands) RegisterGroup(ctx context.Context, groupID int64, name string) error {
	return c.store.UpsertGroup(ctx, groupID, name)
}

func (c *Commands) isAdmin(userID int64) bool {
	return c.adminID != 0 && userID == c.adminID
}

const helpText = `**Available user commands:**
/start - Show this help message
/imagine <prompt> - Generate a video based on the group's reference
/memory <id:optional> - Show your last generated videos or a specific video by ID
/memory search <text> - Find your past videos with a similar prompt

**Available admin commands:**
/reference [group_id] <url1> <url2> ... - Set a reference for the group
Or upload a .txt file captioned /reference [group_id], with one URL per line
/sgl <value> - Set a monthly limit for the group
/sul <value> - Set a monthly limit for each user in the group
/groups - Show all groups where the bot is added`

func (c *Commands) start(ctx context.Context, _ Invocation, r Responder) error {
	return r.Text(ctx, helpText)
}

func (c *Commands) imagine(ctx context.Context, inv Invocation, r Responder) error {
	prompt := strings.TrimSpace(strings.Join(inv.Args, " "))
	if prompt == "" {
		return invalid("Usage: /imagine <prompt>")
	}

	if err := c.quota.Authorize(ctx, inv.GroupID, inv.UserID); err != nil {
		return err
	}

	res, err := c.gen.Generate(ctx, generation.Request{
		UserID:  inv.UserID,
		GroupID: inv.GroupID,
		Prompt:  prompt,
		OnSubmitted: func(int) {
			if err := r.Text(ctx, "Generating video..."); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("send progress message")
			}
		},
	})
	if err != nil {
		return err
	}
	return r.Video(ctx, res.VideoURL)
}

func (c *Commands) memory(ctx context.Context, inv Invocation, r Responder) error {
	if len(inv.Args) == 0 {
		return c.listMemories(ctx, inv, r)
	}
	if strings.EqualFold(inv.Args[0], "search") {
		return c.searchMemories(ctx, inv, r)
	}

	id, err := strconv.Atoi(inv.Args[0])
	if err != nil || id < 1 {
		return invalid("Invalid ID. Please provide a valid numeric ID.")
	}

	entry, err := c.gen.Lookup(ctx, inv.UserID, inv.GroupID, id)
	if errors.Is(err, generation.ErrMemoryNotFound) {
		return invalid("No memory found with ID %d.", id)
	}
	if err != nil {
		return err
	}

	switch entry.Status {
	case models.StatusSuccess:
		return r.Video(ctx, entry.VideoURL)
	case models.StatusPending:
		if err := r.Text(ctx, "Video is still being generated."); err != nil {
			return err
		}
	}

	res, err := c.gen.Resume(ctx, inv.UserID, inv.GroupID, id)
	if err != nil {
		return err
	}
	if res.Status == models.StatusSuccess {
		return r.Video(ctx, res.VideoURL)
	}
	return r.Text(ctx, fmt.Sprintf("Video %d (requested %s UTC) has status %s.",
		id, entry.Timestamp.UTC().Format("2006-01-02 15:04"), res.Status))
}

func (c *Commands) listMemories(ctx context.Context, inv Invocation, r Responder) error {
	history, err := c.store.RecentMemories(ctx, inv.UserID, inv.GroupID, c.history)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}
	if len(history) == 0 {
		return r.Text(ctx, "No past videos found.")
	}
	return r.Text(ctx, formatMemories(
		fmt.Sprintf("Here are your last %d generated videos:", len(history)), history))
}

func (c *Commands) searchMemories(ctx context.Context, inv Invocation, r Responder) error {
	query := strings.TrimSpace(strings.Join(inv.Args[1:], " "))
	if query == "" {
		return invalid("Usage: /memory search <text>")
	}
	if c.searcher == nil {
		return invalid("Memory search is not enabled on this bot.")
	}

	found, err := c.searcher.SearchMemories(ctx, inv.UserID, inv.GroupID, query, c.history)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return r.Text(ctx, "No matching videos found.")
	}
	return r.Text(ctx, formatMemories("Closest matches:", found))
}

func formatMemories(header string, list []models.Memory) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	for _, m := range list {
		fmt.Fprintf(&b, "ID: %d - Generated at %s\n", m.UserVideoID, m.Timestamp.UTC().Format("2006-01-02"))
	}
	b.WriteString("\nUse /memory <id> to view a specific video.")
	return b.String()
}

func (c *Commands) reference(ctx context.Context, inv Invocation, r Responder) error {
	if !c.isAdmin(inv.UserID) {
		return ErrPermissionDenied
	}
	if inv.Attachment != nil {
		return c.referenceFromFile(ctx, inv, r)
	}

	if len(inv.Args) < 1 {
		return invalid("Usage: /reference [group_id] <url1> <url2> ...")
	}

	groupID := inv.GroupID
	urls := inv.Args
	if id, err := strconv.ParseInt(inv.Args[0], 10, 64); err == nil {
		groupID = id
		urls = inv.Args[1:]
	}
	if len(urls) == 0 {
		return invalid("Please provide at least one URL.")
	}

	ref := strings.Join(urls, " ")
	if err := c.store.SetReference(ctx, groupID, ref); err != nil {
		return fmt.Errorf("save reference: %w", err)
	}
	return r.Text(ctx, fmt.Sprintf("Reference for group %d set to:\n%s", groupID, ref))
}

func (c *Commands) referenceFromFile(ctx context.Context, inv Invocation, r Responder) error {
	if !isTextFile(inv.Attachment) {
		return invalid("Please upload a valid .txt file.")
	}

	groupID := inv.GroupID
	if len(inv.Args) > 0 {
		id, err := strconv.ParseInt(inv.Args[0], 10, 64)
		if err != nil {
			return invalid("Invalid group ID. Please provide a valid numeric group ID.")
		}
		groupID = id
	}

	urls, ok := ExtractURLs(inv.Attachment.Data)
	if !ok {
		return invalid("The file must contain a valid list of URLs.")
	}

	if err := c.store.SetReference(ctx, groupID, strings.Join(urls, ",")); err != nil {
		return fmt.Errorf("save reference: %w", err)
	}
	return r.Text(ctx, "Reference set from uploaded file:\n"+strings.Join(urls, ", "))
}

func isTextFile(a *Attachment) bool {
	return strings.HasSuffix(strings.ToLower(a.Filename), ".txt") ||
		strings.HasPrefix(strings.ToLower(a.ContentType), "text/plain")
}

func (c *Commands) setGroupLimit(ctx context.Context, inv Invocation, r Responder) error {
	if !c.isAdmin(inv.UserID) {
		return ErrPermissionDenied
	}
	limit, err := parseLimit(inv.Args, "/sgl")
	if err != nil {
		return err
	}
	if err := c.store.SetGroupLimit(ctx, inv.GroupID, limit); err != nil {
		return fmt.Errorf("save group limit: %w", err)
	}
	return r.Text(ctx, fmt.Sprintf("Group limit set to %d per month", limit))
}

func (c *Commands) setUserLimit(ctx context.Context, inv Invocation, r Responder) error {
	if !c.isAdmin(inv.UserID) {
		return ErrPermissionDenied
	}
	limit, err := parseLimit(inv.Args, "/sul")
	if err != nil {
		return err
	}
	if err := c.store.SetUserLimit(ctx, inv.GroupID, limit); err != nil {
		return fmt.Errorf("save user limit: %w", err)
	}
	return r.Text(ctx, fmt.Sprintf("User limit set to %d per month", limit))
}

func parseLimit(args []string, usage string) (int, error) {
	if len(args) != 1 {
		return 0, invalid("Usage: %s <value>", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, invalid("Usage: %s <value>", usage)
	}
	return n, nil
}

func (c *Commands) groups(ctx context.Context, inv Invocation, r Responder) error {
	if !c.isAdmin(inv.UserID) {
		return ErrPermissionDenied
	}

	groups, err := c.store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	if len(groups) == 0 {
		return r.Text(ctx, "No groups found.")
	}

	var b strings.Builder
	b.WriteString("Here are the groups where the bot is added:\n\n")
	for _, g := range groups {
		fmt.Fprintf(&b, "Name: %s\nID: %d\n\n", g.GroupName, g.GroupID)
	}
	return r.Text(ctx, strings.TrimRight(b.String(), "\n"))
}
