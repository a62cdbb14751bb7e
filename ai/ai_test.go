package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-price-scout/models"
	"github.com/jarcoal/httpmock"
)

type stubCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func sampleProducts() []models.Product {
	return []models.Product{
		{Name: "iPhone 16 128GB", Price: "$799.00", Currency: "USD", Link: "https://shop.test/1", Source: "Amazon US"},
		{Name: "iPhone 16 case", Price: "$19.99", Currency: "USD", Link: "https://shop.test/2", Source: "eBay US"},
		{Name: "iPhone 16 Pro", Price: "$999.00", Currency: "USD", Link: "https://shop.test/3", Source: "Walmart"},
	}
}

func TestFilterRelevant(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		err       error
		wantNames []string
		wantErr   bool
	}{
		{"subset in input order", "Sure: [2, 0]", nil, []string{"iPhone 16 128GB", "iPhone 16 Pro"}, false},
		{"out of range ignored", "[0, 7, -1]", nil, []string{"iPhone 16 128GB"}, false},
		{"duplicates collapse", "[1,1,1]", nil, []string{"iPhone 16 case"}, false},
		{"empty selection", "[]", nil, []string{}, false},
		{"no array", "all of them look fine", nil, nil, true},
		{"model failure", "", errors.New("quota exceeded"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&stubCompleter{reply: tt.reply, err: tt.err}, time.Second)
			got, err := client.FilterRelevant(context.Background(), "iPhone 16", sampleProducts())

			if tt.wantErr {
				var capErr *CapabilityError
				if !errors.As(err, &capErr) || capErr.Op != "relevance" {
					t.Fatalf("err = %v, want relevance *CapabilityError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.wantNames) {
				t.Fatalf("got %d products, want %d", len(got), len(tt.wantNames))
			}
			for i, name := range tt.wantNames {
				if got[i].Name != name {
					t.Fatalf("got[%d] = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}
}

func TestFilterRelevantPromptListsProducts(t *testing.T) {
	stub := &stubCompleter{reply: "[0]"}
	if _, err := NewClient(stub, 0).FilterRelevant(context.Background(), "iPhone 16", sampleProducts()); err != nil {
		t.Fatalf("filter: %v", err)
	}
	prompt := stub.prompts[0]
	for _, want := range []string{`"iPhone 16"`, "0. iPhone 16 128GB", "2. iPhone 16 Pro", "https://shop.test/2"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestEnhance(t *testing.T) {
	reply := "```json\n" + `[
  {"productName": "Apple iPhone 16 (128GB)", "price": 799, "availability": "In Stock", "rating": "4.6", "link": "https://evil.test"},
  {"productName": "Apple iPhone 16 Case", "price": "$19.99", "seller": "CaseCo"},
  {"productName": "Apple iPhone 16 Pro", "price": "$999.00", "rating": 9}
]` + "\n```"
	client := NewClient(&stubCompleter{reply: reply}, 0)
	original := sampleProducts()

	got, err := client.Enhance(context.Background(), original)
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d products", len(got))
	}
	if got[0].Name != "Apple iPhone 16 (128GB)" || got[0].Price != "799" || got[0].Availability != "In Stock" {
		t.Fatalf("first = %+v", got[0])
	}
	if got[0].Link != original[0].Link || got[0].Source != original[0].Source {
		t.Fatalf("link/source must be kept: %+v", got[0])
	}
	if got[0].Rating == nil || *got[0].Rating != 4.6 {
		t.Fatalf("rating = %v", got[0].Rating)
	}
	if got[1].Seller != "CaseCo" || got[1].Currency != "USD" {
		t.Fatalf("second = %+v", got[1])
	}
	if got[2].Rating != nil {
		t.Fatalf("out of scale rating should be ignored, got %v", *got[2].Rating)
	}
	if original[0].Name != "iPhone 16 128GB" {
		t.Fatalf("input mutated: %+v", original[0])
	}
}

func TestEnhanceRejectsUnusableReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"length mismatch", `[{"productName":"a","price":"$1"}]`, nil},
		{"missing price", `[{"productName":"a","price":"$1"},{"productName":"b"},{"productName":"c","price":"$3"}]`, nil},
		{"not json", "I cleaned them for you.", nil},
		{"malformed json", `[{"productName": }]`, nil},
		{"model failure", "", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&stubCompleter{reply: tt.reply, err: tt.err}, 0)
			got, err := client.Enhance(context.Background(), sampleProducts())
			var capErr *CapabilityError
			if !errors.As(err, &capErr) || capErr.Op != "enhance" {
				t.Fatalf("err = %v, want enhance *CapabilityError", err)
			}
			if got != nil {
				t.Fatalf("got products on failure: %+v", got)
			}
		})
	}
}

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name           string
		reply          string
		wantRanked     []int
		wantConfidence int
		wantBest       int
		wantErr        bool
	}{
		{
			name: "full reply",
			reply: `Here you go: {"rankedIndices":[1,0,2],"priceInsights":{"minPrice":19.99,"maxPrice":999,"averagePrice":606,"bestValueIndex":0,"premiumOptionIndex":2},
				"recommendations":["Buy the base model"],"warnings":[],"confidence":85}`,
			wantRanked:     []int{1, 0, 2},
			wantConfidence: 85,
			wantBest:       0,
		},
		{
			name:           "missing confidence and picks",
			reply:          `{"rankedIndices":[2,1],"priceInsights":{}}`,
			wantRanked:     []int{2, 1},
			wantConfidence: DefaultConfidence,
			wantBest:       -1,
		},
		{
			name:           "confidence clamped",
			reply:          `{"rankedIndices":[0],"confidence":140}`,
			wantRanked:     []int{0},
			wantConfidence: 100,
			wantBest:       -1,
		},
		{name: "no ranking", reply: `{"confidence":90}`, wantErr: true},
		{name: "no object", reply: "cannot help", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(&stubCompleter{reply: tt.reply}, 0)
			got, err := client.Analyze(context.Background(), "iPhone 16", sampleProducts(), nil)

			if tt.wantErr {
				var capErr *CapabilityError
				if !errors.As(err, &capErr) || capErr.Op != "analyze" {
					t.Fatalf("err = %v, want analyze *CapabilityError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got.RankedIndices) != len(tt.wantRanked) {
				t.Fatalf("ranked = %v, want %v", got.RankedIndices, tt.wantRanked)
			}
			for i := range tt.wantRanked {
				if got.RankedIndices[i] != tt.wantRanked[i] {
					t.Fatalf("ranked = %v, want %v", got.RankedIndices, tt.wantRanked)
				}
			}
			if got.Confidence != tt.wantConfidence {
				t.Fatalf("confidence = %d, want %d", got.Confidence, tt.wantConfidence)
			}
			if got.PriceInsights.BestValueIndex != tt.wantBest {
				t.Fatalf("best = %d, want %d", got.PriceInsights.BestValueIndex, tt.wantBest)
			}
		})
	}
}

func TestAnalysisPromptCarriesPreferences(t *testing.T) {
	stub := &stubCompleter{reply: `{"rankedIndices":[]}`}
	prefs := &models.Preferences{PrioritizeRating: true, AvoidSellers: []string{"ShadyShop"}}
	if _, err := NewClient(stub, 0).Analyze(context.Background(), "iPhone 16", sampleProducts(), prefs); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	prompt := stub.prompts[0]
	for _, want := range []string{"prioritise price: false", "prioritise rating: true", "avoid sellers: ShadyShop", "preferred sellers: None"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}

func TestClientTimeout(t *testing.T) {
	slow := completerFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, err := NewClient(slow, 20*time.Millisecond).FilterRelevant(context.Background(), "q", sampleProducts())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [
    {"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "[0, 2]"}}
  ]
}`

func TestOpenAICompleter(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var gotAuth, gotBody string
	transport.RegisterResponder(http.MethodPost, "https://llm.test/v1/chat/completions",
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			gotBody = string(body)
			resp := httpmock.NewStringResponse(http.StatusOK, completionBody)
			resp.Header.Set("Content-Type", "application/json")
			return resp, nil
		})

	completer := NewOpenAICompleter("secret", "https://llm.test/v1/", "test-model", &http.Client{Transport: transport})
	text, err := completer.Complete(context.Background(), "pick the phones")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "[0, 2]" {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if !strings.Contains(gotBody, `"test-model"`) || !strings.Contains(gotBody, "pick the phones") {
		t.Fatalf("body = %s", gotBody)
	}
}

func TestOpenAICompleterError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, "https://llm.test/v1/chat/completions",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`))

	completer := NewOpenAICompleter("wrong", "https://llm.test/v1/", "test-model", &http.Client{Transport: transport})
	client := NewClient(completer, time.Second)

	_, err := client.FilterRelevant(context.Background(), "iPhone 16", sampleProducts())
	var capErr *CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("err = %v, want *CapabilityError", err)
	}
}
