package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sakif/cocktail-club/internal/apperror"
	"github.com/sakif/cocktail-club/internal/auth"
	"github.com/sakif/cocktail-club/internal/metrics"
	"github.com/sakif/cocktail-club/internal/model"
	"github.com/sakif/cocktail-club/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUsers is an in-memory UserRepository and OAuthRepository.
type fakeUsers struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	links  map[string]int64 // provider + "/" + provider user id → user id
	nextID int64

	// set to simulate database failures
	getErr error
	setErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[int64]*model.User{}, links: map[string]int64{}, nextID: 1}
}

func (f *fakeUsers) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		switch {
		case existing.LoginID == u.LoginID:
			return apperror.Conflict("login_id", "login id is already taken")
		case u.Email != "" && existing.Email == u.Email:
			return apperror.Conflict("email", "email is already registered")
		case u.Phone != "" && existing.Phone == u.Phone:
			return apperror.Conflict("phone", "phone number is already registered")
		}
	}
	u.ID = f.nextID
	f.nextID++
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", strconv.FormatInt(id, 10))
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetUserByLoginID(_ context.Context, loginID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if u.LoginID == loginID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", loginID)
}

func (f *fakeUsers) SetRefreshToken(_ context.Context, userID int64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	u.RefreshToken = token
	return nil
}

func (f *fakeUsers) GetRefreshToken(_ context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return "", apperror.NotFound("user", strconv.FormatInt(userID, 10))
	}
	return u.RefreshToken, nil
}

func (f *fakeUsers) LinkIdentity(ctx context.Context, p *model.OAuthProfile) (*model.User, error) {
	key := p.Provider + "/" + p.ProviderUserID
	f.mu.Lock()
	id, ok := f.links[key]
	f.mu.Unlock()
	if ok {
		return f.GetUserByID(ctx, id)
	}

	u := &model.User{LoginID: p.Email, Name: p.Name, Email: p.Email}
	if u.LoginID == "" {
		u.LoginID = p.Provider + "_" + p.ProviderUserID
	}
	if err := f.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.links[key] = u.ID
	f.mu.Unlock()
	return u, nil
}

func (f *fakeUsers) GetLink(_ context.Context, provider, providerUserID string) (*model.OAuthLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.links[provider+"/"+providerUserID]
	if !ok {
		return nil, apperror.NotFound("oauth link", provider+"/"+providerUserID)
	}
	return &model.OAuthLink{Provider: provider, ProviderUserID: providerUserID, UserID: id}, nil
}

// fakeEdges keeps edges as a set per kind with a counter per entity.
type fakeEdges struct {
	mu       sync.Mutex
	edges    map[string]bool
	counts   map[string]int64
	entities map[string]bool

	addErr      error
	statusCalls int
}

func newFakeEdges() *fakeEdges {
	return &fakeEdges{edges: map[string]bool{}, counts: map[string]int64{}, entities: map[string]bool{}}
}

func entityKey(kind model.EdgeKind, id int64) string {
	return string(kind) + "#" + strconv.FormatInt(id, 10)
}

func (f *fakeEdges) seed(kind model.EdgeKind, ids ...int64) {
	for _, id := range ids {
		f.entities[entityKey(kind, id)] = true
	}
}

func (f *fakeEdges) AddEdge(_ context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return model.EdgeStatus{}, f.addErr
	}
	ek := entityKey(kind, entityID)
	if !f.entities[ek] {
		return model.EdgeStatus{}, apperror.NotFound(string(kind), strconv.FormatInt(entityID, 10))
	}
	key := ek + "@" + strconv.FormatInt(userID, 10)
	if !f.edges[key] {
		f.edges[key] = true
		f.counts[ek]++
	}
	return model.EdgeStatus{Total: f.counts[ek], Mine: true}, nil
}

func (f *fakeEdges) RemoveEdge(_ context.Context, kind model.EdgeKind, userID, entityID int64) (model.EdgeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ek := entityKey(kind, entityID)
	if !f.entities[ek] {
		return model.EdgeStatus{}, apperror.NotFound(string(kind), strconv.FormatInt(entityID, 10))
	}
	key := ek + "@" + strconv.FormatInt(userID, 10)
	if f.edges[key] {
		delete(f.edges, key)
		if f.counts[ek] > 0 {
			f.counts[ek]--
		}
	}
	return model.EdgeStatus{Total: f.counts[ek], Mine: false}, nil
}

func (f *fakeEdges) EdgeStatus(_ context.Context, kind model.EdgeKind, userID *int64, entityID int64) (model.EdgeStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	ek := entityKey(kind, entityID)
	if !f.entities[ek] {
		return model.EdgeStatus{}, apperror.NotFound(string(kind), strconv.FormatInt(entityID, 10))
	}
	st := model.EdgeStatus{Total: f.counts[ek]}
	if userID != nil {
		st.Mine = f.edges[ek+"@"+strconv.FormatInt(*userID, 10)]
	}
	return st, nil
}

func (f *fakeEdges) Recount(_ context.Context, kind model.EdgeKind) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	actual := map[string]int64{}
	for key := range f.edges {
		ek, _, _ := strings.Cut(key, "@")
		actual[ek]++
	}
	var fixed int64
	for ek := range f.entities {
		if !strings.HasPrefix(ek, string(kind)+"#") {
			continue
		}
		if f.counts[ek] != actual[ek] {
			f.counts[ek] = actual[ek]
			fixed++
		}
	}
	return fixed, nil
}

// fakeBoard is an in-memory PostRepository and CommentRepository.
type fakeBoard struct {
	posts    map[int64]*model.Post
	comments map[int64]*model.Comment
	nextID   int64
	lastList repository.PostFilter
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{posts: map[int64]*model.Post{}, comments: map[int64]*model.Comment{}, nextID: 1}
}

func (f *fakeBoard) CreatePost(_ context.Context, p *model.Post) error {
	p.ID = f.nextID
	f.nextID++
	p.CreatedAt = time.Now().UTC()
	cp := *p
	f.posts[p.ID] = &cp
	return nil
}

func (f *fakeBoard) GetPost(_ context.Context, id int64) (*model.Post, error) {
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.NotFound("post", strconv.FormatInt(id, 10))
	}
	cp := *p
	return &cp, nil
}

func (f *fakeBoard) ListPosts(_ context.Context, filter repository.PostFilter) ([]model.Post, int64, error) {
	f.lastList = filter
	all := f.sorted()
	total := int64(len(all))
	start := min(filter.Offset, len(all))
	end := min(start+filter.Limit, len(all))
	return all[start:end], total, nil
}

func (f *fakeBoard) LatestPosts(_ context.Context, limit int) ([]model.Post, error) {
	all := f.sorted()
	return all[:min(limit, len(all))], nil
}

func (f *fakeBoard) sorted() []model.Post {
	out := make([]model.Post, 0, len(f.posts))
	for _, p := range f.posts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *fakeBoard) DeletePost(_ context.Context, id int64) error {
	if _, ok := f.posts[id]; !ok {
		return apperror.NotFound("post", strconv.FormatInt(id, 10))
	}
	delete(f.posts, id)
	return nil
}

func (f *fakeBoard) CreateComment(_ context.Context, c *model.Comment) error {
	if _, ok := f.posts[c.PostID]; !ok {
		return apperror.NotFound("post", strconv.FormatInt(c.PostID, 10))
	}
	c.ID = f.nextID
	f.nextID++
	cp := *c
	f.comments[c.ID] = &cp
	return nil
}

func (f *fakeBoard) GetComment(_ context.Context, id int64) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", strconv.FormatInt(id, 10))
	}
	cp := *c
	return &cp, nil
}

func (f *fakeBoard) ListComments(_ context.Context, postID int64) ([]model.Comment, error) {
	out := []model.Comment{}
	for _, c := range f.comments {
		if c.PostID == postID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBoard) DeleteComment(_ context.Context, id int64) error {
	if _, ok := f.comments[id]; !ok {
		return apperror.NotFound("comment", strconv.FormatInt(id, 10))
	}
	delete(f.comments, id)
	return nil
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(auth.TokenConfig{Secret: "test-secret-at-least-16-chars!!"})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func newTestSessionService(t *testing.T, users *fakeUsers, rotate bool) *SessionService {
	t.Helper()
	return NewSessionService(SessionDeps{
		Users:           users,
		Links:           users,
		Tokens:          newTestTokens(t),
		Passwords:       auth.NewPasswordServiceForTest(),
		Providers:       auth.Providers{},
		Metrics:         metrics.New(),
		Logger:          discardLogger(),
		RotateOnRefresh: rotate,
	})
}
