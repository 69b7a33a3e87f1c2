package service

import (
	"context"
	"errors"
	"sync"

	"llamatalks-be/internal/pkg/logger"
	"llamatalks-be/internal/repository/memory"
	"llamatalks-be/internal/repository/unitofwork"
	"llamatalks-be/pkg/events"
	"llamatalks-be/pkg/llm"
)

type fakeLLM struct {
	mu        sync.Mutex
	reply     string
	err       error
	fragments []string
	streamErr error
	hang      bool
	histories [][]llm.Message
}

func (f *fakeLLM) record(history []llm.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]llm.Message, len(history))
	copy(cp, history)
	f.histories = append(f.histories, cp)
}

func (f *fakeLLM) lastHistory() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.histories) == 0 {
		return nil
	}
	return f.histories[len(f.histories)-1]
}

func (f *fakeLLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	f.record(history)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, history []llm.Message, options ...llm.Option) (llm.ChatStream, error) {
	f.record(history)
	if f.err != nil {
		return nil, f.err
	}
	return &fakeStream{ctx: ctx, fragments: f.fragments, err: f.streamErr, hang: f.hang}, nil
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

// fakeStream yields fragments, then fails with err, hangs until ctx is done,
// or reports completion.
type fakeStream struct {
	ctx       context.Context
	fragments []string
	next      int
	err       error
	hang      bool
	closed    bool
}

func (s *fakeStream) Recv() (string, bool, error) {
	if s.next < len(s.fragments) {
		s.next++
		return s.fragments[s.next-1], false, nil
	}
	if s.err != nil {
		return "", false, s.err
	}
	if s.hang {
		<-s.ctx.Done()
		return "", false, s.ctx.Err()
	}
	return "", true, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeRetriever struct {
	context string
	err     error
	queries []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	f.queries = append(f.queries, query)
	return f.context, f.err
}

// fakeEmbedder maps each text to a fixed vector of length dim. short makes it
// return vectors one element too short; block makes it wait for ctx.
type fakeEmbedder struct {
	mu    sync.Mutex
	dim   int
	short bool
	block bool
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := f.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	n := f.dim
	if f.short {
		n--
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, n)
		if n > 0 {
			v[i%n] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errBoom = errors.New("boom")

type chatFixture struct {
	svc       IChatService
	llm       *fakeLLM
	retriever *fakeRetriever
	events    *events.RecordingPublisher
	factory   unitofwork.RepositoryFactory
}

func newChatFixture(cfg ChatServiceConfig) *chatFixture {
	f := &chatFixture{
		llm:       &fakeLLM{reply: "Hello from the llama"},
		retriever: &fakeRetriever{},
		events:    events.NewRecordingPublisher(32),
		factory:   memory.NewRepositoryFactory(memory.NewStore()),
	}
	f.svc = NewChatService(f.factory, f.llm, f.retriever, f.events, logger.NewNopLogger(), cfg)
	return f
}

func eventTypes(evts []events.Event) []string {
	out := make([]string, len(evts))
	for i, e := range evts {
		out[i] = e.EventType()
	}
	return out
}
