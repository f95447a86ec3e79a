package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/codeyard/config"
	"github.com/duynhne/codeyard/internal/sandbox"
	v1 "github.com/duynhne/codeyard/internal/web/v1"
)

type harness struct {
	t       *testing.T
	global  []string
	sandbox *sandbox.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default()
	cfg.Sandbox.AuthRateLimitRPS = 0
	svc := sandbox.New(sandbox.Options{JWTSecret: "cli-secret", BcryptCost: bcrypt.MinCost})
	require.NoError(t, svc.Seed())
	srv := httptest.NewServer(v1.NewRouter(ctx, cfg, svc, nil))
	t.Cleanup(srv.Close)

	return &harness{
		t: t,
		global: []string{
			"-api", srv.URL + "/api",
			"-session", filepath.Join(t.TempDir(), "session.db"),
		},
		sandbox: svc,
	}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	err := run(context.Background(), append(append([]string{}, h.global...), args...),
		bytes.NewBufferString(stdin), stdout, stderr)
	return stdout.String(), err
}

func (h *harness) login(username string) {
	h.t.Helper()
	out, err := h.run("", "login", "-user", username, "-password", sandbox.SeedPassword)
	require.NoError(h.t, err)
	require.Contains(h.t, out, "Logged in as "+username)
}

func TestRun_SessionSurvivesInvocations(t *testing.T) {
	h := newHarness(t)
	h.login("bob")

	out, err := h.run("", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "bob <bob@codeyard.dev> (id 2)\n", out)

	out, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = h.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestRun_InteractivePassword(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(sandbox.SeedPassword+"\n", "login", "-user", "cid")
	require.NoError(t, err)
	assert.Contains(t, out, "Password: ")
	assert.Contains(t, out, "Logged in as cid")
}

func TestRun_RegisterPromptsTwice(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("secret1\nsecret1\n", "register", "-user", "fay")
	require.NoError(t, err)
	assert.Contains(t, out, "Repeat password: ")
	assert.Contains(t, out, "Registered and logged in as fay")
}

func TestRun_RegisterServerValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "register", "-user", "ann", "-password", "secret1")
	require.Error(t, err)
	assert.Equal(t, "username: A user with that username already exists.", err.Error())
}

func TestRun_WrongPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "login", "-user", "bob", "-password", "nope")
	require.Error(t, err)
	assert.Equal(t, "No active account found with the given credentials.", err.Error())
}

func TestRun_LikeShowsOptimisticCounts(t *testing.T) {
	h := newHarness(t)
	h.login("bob")

	out, err := h.run("", "like", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "[ok] Your review has been saved.")
	assert.Contains(t, out, "Solution 5: +3 / -1")

	out, err = h.run("", "solutions", "-task", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "positive")
}

func TestRun_LikeOwnSolution(t *testing.T) {
	h := newHarness(t)
	h.login("ann")

	_, err := h.run("", "like", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "your own solution")
}

func TestRun_ExpiredStoredTokenEndsSession(t *testing.T) {
	h := newHarness(t)
	h.login("bob")
	h.sandbox.ExpireAccessTokens()

	// a new process has no refresh cookie, so the stored token is dropped
	_, err := h.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)

	_, err = h.run("", "whoami")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestRun_TasksWithFilters(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("", "tasks", "-category", "3", "-difficulty", "2", "-sort", "name")
	require.NoError(t, err)
	assert.Contains(t, out, "Course Schedule")
	assert.Contains(t, out, "Rotting Oranges")
	assert.NotContains(t, out, "Word Ladder")
	assert.Contains(t, out, "2 task(s), page 1")
}

func TestRun_TasksMineRequiresLogin(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "tasks", "-mine")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestRun_PublishOwnDraft(t *testing.T) {
	h := newHarness(t)
	h.login("bob")

	out, err := h.run("", "publish", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "[ok] Solution published.")
}

func TestRun_DeleteForeignSolutionFails(t *testing.T) {
	h := newHarness(t)
	h.login("bob")

	out, err := h.run("", "delete-solution", "5")
	assert.ErrorIs(t, err, errMutationFailed)
	assert.Contains(t, out, "[error] You do not have permission to perform this action.")
}

func TestRun_UnknownCommand(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
