package screen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"photo-screener/api/internal/criteria"
)

type reply struct {
	txt string
	err error
}

// fakeEngine отвечает по модели; записывает порядок вызовов.
type fakeEngine struct {
	replies map[string]reply
	calls   []string
	prompts []string
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Generate(_ context.Context, model string, _ []byte, _ string, prompt string) (string, error) {
	f.calls = append(f.calls, model)
	f.prompts = append(f.prompts, prompt)
	r := f.replies[model]
	return r.txt, r.err
}

func TestAnalyzeFirstModelWins(t *testing.T) {
	eng := &fakeEngine{replies: map[string]reply{
		"m1": {txt: `{"status":"FAIL","reasons":["Blurry"," "],"feedback":"Hold still"}`},
	}}
	a := NewAnalyzer(eng, []string{"m1", "m2"}, zaptest.NewLogger(t))

	res, model, err := a.Analyze(context.Background(), []byte{1}, "image/jpeg", criteria.Defaults())
	require.NoError(t, err)
	assert.Equal(t, "m1", model)
	assert.Equal(t, Result{Status: Fail, Reasons: []string{"Blurry"}, Feedback: "Hold still"}, res)
	assert.Equal(t, []string{"m1"}, eng.calls)
	assert.Equal(t, BuildPrompt(criteria.Defaults()), eng.prompts[0])
}

func TestAnalyzeFallsBackOnMalformed(t *testing.T) {
	eng := &fakeEngine{replies: map[string]reply{
		"m1": {txt: "I think it looks great!"},
		"m2": {txt: "```json\n{\"status\":\"pass\",\"feedback\":\"ok\"}\n```"},
	}}
	a := NewAnalyzer(eng, []string{"m1", "m2"}, zaptest.NewLogger(t))

	res, model, err := a.Analyze(context.Background(), []byte{1}, "image/png", criteria.Set{})
	require.NoError(t, err)
	assert.Equal(t, "m2", model)
	assert.Equal(t, Pass, res.Status)
	assert.NotNil(t, res.Reasons, "reasons are never null")
	assert.Empty(t, res.Reasons)
}

func TestAnalyzeReportsLastFailure(t *testing.T) {
	last := errors.New("quota exceeded")
	eng := &fakeEngine{replies: map[string]reply{
		"m1": {txt: ""},
		"m2": {err: last},
	}}
	a := NewAnalyzer(eng, []string{"m1", "m2"}, zaptest.NewLogger(t))

	_, _, err := a.Analyze(context.Background(), []byte{1}, "image/jpeg", criteria.Defaults())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, last)
	assert.Contains(t, err.Error(), "m2")
	assert.Equal(t, []string{"m1", "m2"}, eng.calls)
}

func TestAnalyzeStopsWhenNotConfigured(t *testing.T) {
	eng := &fakeEngine{replies: map[string]reply{"m1": {err: ErrNotConfigured}}}
	a := NewAnalyzer(eng, []string{"m1", "m2"}, zaptest.NewLogger(t))

	_, _, err := a.Analyze(context.Background(), []byte{1}, "image/jpeg", criteria.Defaults())
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, []string{"m1"}, eng.calls)
}

func TestAnalyzeNoModels(t *testing.T) {
	_, _, err := NewAnalyzer(&fakeEngine{}, nil, nil).Analyze(context.Background(), nil, "", nil)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestParseResult(t *testing.T) {
	_, err := ParseResult("   ")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseResult(`{"status":"MAYBE","reasons":[],"feedback":""}`)
	assert.ErrorIs(t, err, ErrMalformed)

	res, err := ParseResult(`{"status":" Pass ","reasons":null,"feedback":" nice "}`)
	require.NoError(t, err)
	assert.Equal(t, Result{Status: Pass, Reasons: []string{}, Feedback: "nice"}, res)
}
