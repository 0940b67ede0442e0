package bot

import (
	"context"
	"discord-video-bot/internal/database"
	"discord-video-bot/internal/generation"
	"discord-video-bot/internal/models"
	"discord-video-bot/internal/quota"
	"discord-video-bot/internal/render"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminID int64 = 1000
	userID  int64 = 2000
	groupID int64 = 3000
)

type reply struct {
	kind string // text|video
	body string
}

type fakeResponder struct {
	replies []reply
	err     error
}

func (f *fakeResponder) Text(_ context.Context, msg string) error {
	f.replies = append(f.replies, reply{"text", msg})
	return f.err
}

func (f *fakeResponder) Video(_ context.Context, url string) error {
	f.replies = append(f.replies, reply{"video", url})
	return f.err
}

func (f *fakeResponder) last() reply {
	if len(f.replies) == 0 {
		return reply{}
	}
	return f.replies[len(f.replies)-1]
}

// scriptedRenderer creates tasks T1, T2, ... and answers Status from states.
type scriptedRenderer struct {
	states    []render.TaskStatus
	submitErr error
	statusErr error
	submits   int
	polls     int
}

func (s *scriptedRenderer) Submit(context.Context, render.SubmitRequest) (*render.SubmitResponse, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	s.submits++
	return &render.SubmitResponse{TaskID: "T" + string(rune('0'+s.submits)), State: render.StateCreated}, nil
}

func (s *scriptedRenderer) Status(context.Context, string) (*render.TaskStatus, error) {
	if s.statusErr != nil {
		s.polls++
		return nil, s.statusErr
	}
	idx := s.polls
	if idx >= len(s.states) {
		idx = len(s.states) - 1
	}
	s.polls++
	st := s.states[idx]
	return &st, nil
}

type fixture struct {
	db       *database.DB
	renderer *scriptedRenderer
	cmds     *Commands
}

func newFixture(t *testing.T, states ...render.TaskStatus) *fixture {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if len(states) == 0 {
		states = []render.TaskStatus{{State: render.StateSuccess, Creations: []render.Creation{{URL: "https://v.example/1.mp4"}}}}
	}
	r := &scriptedRenderer{states: states}
	ctrl := generation.NewController(generation.Config{
		Model:        "vidu1.5",
		EndingPrompt: "2d animation",
		Poll: generation.PollPolicy{
			Interval: time.Second,
			Budget:   3 * time.Second,
			Sleep:    func(context.Context, time.Duration) error { return nil },
		},
	}, r, db)

	return &fixture{
		db:       db,
		renderer: r,
		cmds:     NewCommands(adminID, 5, db, quota.NewGuard(db), ctrl, nil),
	}
}

func (f *fixture) run(t *testing.T, inv Invocation) *fakeResponder {
	t.Helper()
	if inv.GroupID == 0 {
		inv.GroupID = groupID
	}
	r := &fakeResponder{}
	require.NoError(t, f.cmds.Dispatch(context.Background(), inv, r))
	return r
}

func TestDispatch_UnknownCommandIsIgnored(t *testing.T) {
	f := newFixture(t)
	r := f.run(t, Invocation{UserID: userID, Command: "weather"})
	assert.Empty(t, r.replies)
	assert.False(t, f.cmds.Known("weather"))
	assert.True(t, f.cmds.Known("imagine"))
}

func TestStart_ShowsHelp(t *testing.T) {
	f := newFixture(t)
	r := f.run(t, Invocation{UserID: userID, Command: "start"})
	require.Len(t, r.replies, 1)
	assert.Contains(t, r.last().body, "/imagine <prompt>")
	assert.Contains(t, r.last().body, "/sgl <value>")
}

func TestAdminCommands_RejectNonAdmin(t *testing.T) {
	f := newFixture(t)
	for _, cmd := range []string{"reference", "sgl", "sul", "groups"} {
		r := f.run(t, Invocation{UserID: userID, Command: cmd, Args: []string{"5"}})
		assert.Equal(t, "You don't have permission to use this command.", r.last().body, cmd)
	}

	lim, err := f.db.GetLimits(context.Background(), groupID)
	require.NoError(t, err)
	assert.Nil(t, lim.GroupLimit)
}

func TestReference_SetsCurrentOrExplicitGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.run(t, Invocation{UserID: adminID, Command: "reference", Args: []string{"https://a.example/1.jpg", "https://b.example/2.jpg"}})
	assert.Equal(t, "Reference for group 3000 set to:\nhttps://a.example/1.jpg https://b.example/2.jpg", r.last().body)

	ref, err := f.db.GetReference(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/1.jpg https://b.example/2.jpg", ref)

	f.run(t, Invocation{UserID: adminID, Command: "reference", Args: []string{"42", "https://c.example/3.jpg"}})
	ref, err = f.db.GetReference(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "https://c.example/3.jpg", ref)
}

func TestReference_Usage(t *testing.T) {
	f := newFixture(t)

	r := f.run(t, Invocation{UserID: adminID, Command: "reference"})
	assert.Equal(t, "Usage: /reference [group_id] <url1> <url2> ...", r.last().body)

	r = f.run(t, Invocation{UserID: adminID, Command: "reference", Args: []string{"42"}})
	assert.Equal(t, "Please provide at least one URL.", r.last().body)
}

func TestReference_FromFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.run(t, Invocation{
		UserID:  adminID,
		Command: "reference",
		Args:    []string{"77"},
		Attachment: &Attachment{
			Filename: "refs.txt",
			Data:     []byte("https://a.example/1.jpg\n\nb.example.org/2.png\n"),
		},
	})
	assert.Equal(t, "Reference set from uploaded file:\nhttps://a.example/1.jpg, b.example.org/2.png", r.last().body)

	ref, err := f.db.GetReference(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example/1.jpg,b.example.org/2.png", ref)
}

func TestReference_FromFileRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name string
		inv  Invocation
		want string
	}{
		{
			"not text",
			Invocation{Attachment: &Attachment{Filename: "a.png", ContentType: "image/png"}},
			"Please upload a valid .txt file.",
		},
		{
			"bad group",
			Invocation{Args: []string{"general"}, Attachment: &Attachment{Filename: "a.txt", Data: []byte("https://a.example/x")}},
			"Invalid group ID. Please provide a valid numeric group ID.",
		},
		{
			"bad line",
			Invocation{Attachment: &Attachment{Filename: "a.txt", Data: []byte("https://a.example/x\nnot a url\n")}},
			"The file must contain a valid list of URLs.",
		},
		{
			"empty",
			Invocation{Attachment: &Attachment{Filename: "a.txt", ContentType: "text/plain; charset=utf-8"}},
			"The file must contain a valid list of URLs.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.inv.UserID = adminID
			tc.inv.Command = "reference"
			r := f.run(t, tc.inv)
			assert.Equal(t, tc.want, r.last().body)
		})
	}

	ref, err := f.db.GetReference(context.Background(), groupID)
	require.NoError(t, err)
	assert.Empty(t, ref)
}

func TestLimits_SetAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.run(t, Invocation{UserID: adminID, Command: "sgl", Args: []string{"100"}})
	assert.Equal(t, "Group limit set to 100 per month", r.last().body)
	r = f.run(t, Invocation{UserID: adminID, Command: "sul", Args: []string{"10"}})
	assert.Equal(t, "User limit set to 10 per month", r.last().body)

	lim, err := f.db.GetLimits(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, 100, *lim.GroupLimit)
	assert.Equal(t, 10, *lim.UserLimit)

	for _, args := range [][]string{nil, {"ten"}, {"1", "2"}, {"-3"}} {
		r = f.run(t, Invocation{UserID: adminID, Command: "sul", Args: args})
		assert.Equal(t, "Usage: /sul <value>", r.last().body)
	}
}

func TestGroups_ListsRegisteredGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.run(t, Invocation{UserID: adminID, Command: "groups"})
	assert.Equal(t, "No groups found.", r.last().body)

	require.NoError(t, f.cmds.RegisterGroup(ctx, 5, "Animators"))
	r = f.run(t, Invocation{UserID: adminID, Command: "groups"})
	assert.Equal(t, "Here are the groups where the bot is added:\n\nName: Animators\nID: 5", r.last().body)
}

func TestImagine_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.SetReference(ctx, groupID, "https://a.example/1.jpg"))

	r := f.run(t, Invocation{UserID: userID, Command: "imagine", Args: []string{"a", "cat"}})
	assert.Equal(t, []reply{
		{"text", "Generating video..."},
		{"video", "https://v.example/1.mp4"},
	}, r.replies)

	usage, err := f.db.GetUsage(ctx, groupID, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.UserCalls)
}

func TestImagine_Usage(t *testing.T) {
	f := newFixture(t)
	r := f.run(t, Invocation{UserID: userID, Command: "imagine"})
	assert.Equal(t, "Usage: /imagine <prompt>", r.last().body)
	assert.Zero(t, f.renderer.submits)
}

func TestImagine_NoReference(t *testing.T) {
	f := newFixture(t)
	r := f.run(t, Invocation{UserID: userID, Command: "imagine", Args: []string{"cat"}})
	assert.Equal(t, "No reference set for this group.", r.last().body)
}

func TestImagine_QuotaExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.SetReference(ctx, groupID, "https://a.example/1.jpg"))
	require.NoError(t, f.db.SetUserLimit(ctx, groupID, 10))
	for i := 0; i < 10; i++ {
		require.NoError(t, f.db.IncrementUsage(ctx, groupID, userID))
	}

	r := f.run(t, Invocation{UserID: userID, Command: "imagine", Args: []string{"cat"}})
	assert.Equal(t, "You have reached your monthly limit.", r.last().body)
	assert.Zero(t, f.renderer.submits)

	require.NoError(t, f.db.SetGroupLimit(ctx, groupID, 10))
	r = f.run(t, Invocation{UserID: userID, Command: "imagine", Args: []string{"cat"}})
	assert.Equal(t, "Group has reached its monthly limit.", r.last().body)
}

func TestImagine_TimeoutPointsToMemory(t *testing.T) {
	f := newFixture(t, render.TaskStatus{State: render.StateProcessing})
	require.NoError(t, f.db.SetReference(context.Background(), groupID, "https://a.example/1.jpg"))

	r := f.run(t, Invocation{UserID: userID, Command: "imagine", Args: []string{"cat"}})
	assert.Equal(t, "Video generation is taking too long. Use /memory 1 to check the status.", r.last().body)
	assert.Equal(t, 3, f.renderer.polls)
}

func TestImagine_RenderErrorIsReported(t *testing.T) {
	f := newFixture(t)
	f.renderer.submitErr = &render.RequestError{Op: "submit", StatusCode: 403, Body: "forbidden"}
	require.NoError(t, f.db.SetReference(context.Background(), groupID, "https://a.example/1.jpg"))

	r := f.run(t, Invocation{UserID: userID, Command: "imagine", Args: []string{"cat"}})
	assert.Equal(t, "Error: the video service answered with HTTP 403: forbidden", r.last().body)
}

func TestImagine_StatusErrorPointsToMemory(t *testing.T) {
	f := newFixture(t)
	f.renderer.statusErr = &render.RequestError{Op: "status", StatusCode: 502}
	require.NoError(t, f.db.SetReference(context.Background(), groupID, "https://a.example/1.jpg"))

	r := f.run(t, Invocation{UserID: userID, Command: "imagine", Args: []string{"cat"}})
	assert.Equal(t, "Could not check the video status. Use /memory 1 to try again.", r.last().body)

	m, err := f.db.GetMemoryByID(context.Background(), userID, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, m.Status)
}

func TestMemory_ListAndLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.run(t, Invocation{UserID: userID, Command: "memory"})
	assert.Equal(t, "No past videos found.", r.last().body)

	ts := time.Date(2025, 4, 24, 4, 18, 0, 0, time.UTC)
	_, err := f.db.AddMemory(ctx, &models.Memory{UserID: userID, GroupID: groupID, TaskID: "A", Timestamp: ts})
	require.NoError(t, err)
	require.NoError(t, f.db.RecordSuccess(ctx, userID, groupID, "A", "https://v.example/a.mp4"))

	r = f.run(t, Invocation{UserID: userID, Command: "memory"})
	assert.Equal(t, "Here are your last 1 generated videos:\n\nID: 1 - Generated at 2025-04-24\n\nUse /memory <id> to view a specific video.", r.last().body)

	r = f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"1"}})
	assert.Equal(t, reply{"video", "https://v.example/a.mp4"}, r.last())
	assert.Zero(t, f.renderer.polls)
}

func TestMemory_LookupErrors(t *testing.T) {
	f := newFixture(t)

	r := f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"abc"}})
	assert.Equal(t, "Invalid ID. Please provide a valid numeric ID.", r.last().body)

	r = f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"9"}})
	assert.Equal(t, "No memory found with ID 9.", r.last().body)
}

func TestMemory_PendingIsResumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.db.AddMemory(ctx, &models.Memory{UserID: userID, GroupID: groupID, TaskID: "P"})
	require.NoError(t, err)

	r := f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"1"}})
	assert.Equal(t, []reply{
		{"text", "Video is still being generated."},
		{"video", "https://v.example/1.mp4"},
	}, r.replies)

	m, err := f.db.GetMemoryByID(ctx, userID, groupID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, m.Status)
}

func TestMemory_FailedEntryReportsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ts := time.Date(2025, 5, 3, 2, 2, 0, 0, time.UTC)
	_, err := f.db.AddMemory(ctx, &models.Memory{UserID: userID, GroupID: groupID, TaskID: "F", Status: models.StatusFailed, Timestamp: ts})
	require.NoError(t, err)

	r := f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"1"}})
	assert.Equal(t, "Video 1 (requested 2025-05-03 02:02 UTC) has status failed.", r.last().body)
	assert.Zero(t, f.renderer.polls)
}

type stubSearcher struct {
	out []models.Memory
	err error
}

func (s stubSearcher) SearchMemories(context.Context, int64, int64, string, int) ([]models.Memory, error) {
	return s.out, s.err
}

func TestMemory_Search(t *testing.T) {
	f := newFixture(t)

	r := f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"search", "cat"}})
	assert.Equal(t, "Memory search is not enabled on this bot.", r.last().body)

	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	f.cmds.searcher = stubSearcher{out: []models.Memory{{UserVideoID: 4, Timestamp: ts}}}
	r = f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"search", "cat"}})
	assert.Contains(t, r.last().body, "ID: 4 - Generated at 2025-01-02")

	r = f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"search"}})
	assert.Equal(t, "Usage: /memory search <text>", r.last().body)

	f.cmds.searcher = stubSearcher{}
	r = f.run(t, Invocation{UserID: userID, Command: "memory", Args: []string{"search", "dog"}})
	assert.Equal(t, "No matching videos found.", r.last().body)
}

func TestDispatch_ReturnsReplyError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("discord down")
	r := &fakeResponder{err: boom}

	err := f.cmds.Dispatch(context.Background(), Invocation{GroupID: groupID, UserID: userID, Command: "start"}, r)
	assert.ErrorIs(t, err, boom)
}
