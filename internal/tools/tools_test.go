package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/delegent/internal/config"
	"github.com/soyeahso/delegent/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// testEnv points every endpoint at one httptest server.
func testEnv(t *testing.T, h http.HandlerFunc) *Env {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	cfg := config.Defaults().Tools
	cfg.Timeout = 2 * time.Second
	cfg.AllowPrivateURLs = true
	cfg.RatePerSecond = 0
	cfg.SearchURL = ts.URL + "/ddg"
	cfg.GeocodingURL = ts.URL + "/geo"
	cfg.WeatherURL = ts.URL + "/forecast"
	cfg.WikipediaURL = ts.URL + "/w/api.php"
	return NewEnv(cfg, silentLog())
}

func builtinRegistry(t *testing.T, env *Env) *Registry {
	t.Helper()
	reg, err := NewBuiltinRegistry(env)
	require.NoError(t, err)
	return reg
}

func invoke(t *testing.T, reg *Registry, name, input string) (string, error) {
	t.Helper()
	return reg.Invoke(context.Background(), name, json.RawMessage(input))
}

// --- Registry tests ---

func TestBuiltinNames(t *testing.T) {
	reg := builtinRegistry(t, NewEnv(config.Defaults().Tools, nil))
	assert.Equal(t, []string{
		"calculator", "duckduckgo_search", "fetch_url_content", "get_current_time",
		"get_weather", "json_pretty_print", "sentiment_analysis", "wiki_summary",
	}, reg.Names())
	assert.Equal(t, 8, reg.Len())

	for _, d := range reg.Definitions() {
		assert.NotEmpty(t, d.Description, d.Name)
		assert.True(t, json.Valid([]byte(d.Schema())), d.Name)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg, err := NewRegistry(Calculator())
	require.NoError(t, err)
	err = reg.Register(Calculator())
	assert.ErrorContains(t, err, "already registered")

	_, err = NewRegistry(Calculator(), Calculator())
	assert.Error(t, err)
}

func TestInvokeUnknownTool(t *testing.T) {
	reg, _ := NewRegistry(Calculator())
	_, err := invoke(t, reg, "teleport", `{}`)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "teleport", ve.Tool)
	assert.Contains(t, ve.Message, "calculator")
}

func TestInvokeValidation(t *testing.T) {
	reg, _ := NewRegistry(Calculator(), Weather(NewEnv(config.Defaults().Tools, nil)))

	tests := []struct {
		name, tool, input, field string
	}{
		{"missing required", "calculator", `{}`, "expression"},
		{"unknown field", "calculator", `{"expression":"1","precision":2}`, "precision"},
		{"wrong type", "calculator", `{"expression":true}`, "expression"},
		{"not an object", "calculator", `[1,2]`, ""},
		{"validate hook", "calculator", `{"expression":"   "}`, "expression"},
		{"half coordinates", "get_weather", `{"city":"Oslo","latitude":59.9}`, "latitude"},
		{"bad number", "get_weather", `{"city":"Oslo","latitude":"north","longitude":10}`, "latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke(t, reg, tt.tool, tt.input)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.tool, ve.Tool)
			assert.Equal(t, tt.field, ve.Field)
			assert.True(t, IsToolError(err))
		})
	}
}

func TestInvokeBareString(t *testing.T) {
	reg, _ := NewRegistry(Calculator(), Clock(&Env{}))

	out, err := invoke(t, reg, "calculator", `"6*7"`)
	require.NoError(t, err)
	assert.Equal(t, "Result: 42", out)

	out, err = invoke(t, reg, "get_current_time", `"UTC"`)
	require.NoError(t, err)
	assert.Contains(t, out, "Current UTC time:")
}

func TestInvokeExecutionError(t *testing.T) {
	reg, _ := NewRegistry(Calculator())
	_, err := invoke(t, reg, "calculator", `{"expression":"1/0"}`)

	var te *ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "calculator", te.Tool)
	assert.Equal(t, "calculator failed: division by zero", te.Error())
}

func TestInvokeRecoversPanic(t *testing.T) {
	boom := New(Definition{Name: "boom"}, func(context.Context, struct{}) (string, error) {
		panic("kaboom")
	})
	reg, _ := NewRegistry(boom)

	_, err := invoke(t, reg, "boom", `{}`)
	var te *ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "kaboom")
}

func TestExecutionErrorKeepsCause(t *testing.T) {
	sentinel := errors.New("upstream down")
	tool := New(Definition{Name: "x"}, func(context.Context, struct{}) (string, error) { return "", sentinel })
	reg, _ := NewRegistry(tool)

	_, err := invoke(t, reg, "x", `null`)
	assert.ErrorIs(t, err, sentinel)
}

func TestDefaultsApplied(t *testing.T) {
	var got WikiInput
	tool := New(Definition{Name: "w", Fields: []Field{
		{Name: "query", Type: String, Required: true},
		{Name: "sentences", Type: Number, Default: 3},
	}}, func(_ context.Context, in WikiInput) (string, error) {
		got = in
		return "ok", nil
	})
	reg, _ := NewRegistry(tool)

	_, err := invoke(t, reg, "w", `{"query":"go"}`)
	require.NoError(t, err)
	assert.Equal(t, WikiInput{Query: "go", Sentences: 3}, got)

	_, err = invoke(t, reg, "w", `{"query":"go","sentences":"5"}`)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Sentences)
}

func TestSchema(t *testing.T) {
	var schema struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal([]byte(Weather(&Env{}).Definition().Schema()), &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"city"}, schema.Required)
	assert.Equal(t, "number", schema.Properties["latitude"]["type"])
}

// --- Clock tests ---

func TestClock(t *testing.T) {
	fixed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	reg, _ := NewRegistry(Clock(&Env{Now: func() time.Time { return fixed }}))

	out, err := invoke(t, reg, "get_current_time", `{"timezone":"UTC"}`)
	require.NoError(t, err)
	assert.Equal(t, "Current UTC time: 2026-03-14 15:09:26", out)

	out, err = invoke(t, reg, "get_current_time", `{"timezone":"Asia/Tokyo"}`)
	require.NoError(t, err)
	assert.Equal(t, "Current Asia/Tokyo time: 2026-03-15 00:09:26", out)

	out, err = invoke(t, reg, "get_current_time", `{}`)
	require.NoError(t, err)
	assert.Regexp(t, `^Current local time: \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, out)

	_, err = invoke(t, reg, "get_current_time", `{"timezone":"Mars/Olympus"}`)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

// --- Calculator tests ---

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"2+2", "4"},
		{"2 + 3 * 4", "14"},
		{"(2+3)*4", "20"},
		{"7/2", "3.5"},
		{"2**10", "1024"},
		{"2^3^2", "512"},
		{"-2**2", "-4"},
		{"2*3^2", "18"},
		{"10 % 3", "1"},
		{"-7 % 3", "2"},
		{"7 % -3", "-2"},
		{"7.5 % 2", "1.5"},
		{"tau / 2 - pi", "0"},
		{"floor(-2.5) + ceil(2.1)", "0"},
		{"log10(1000) * exp(0)", "3"},
		{"sqrt(16) + abs(-3)", "7"},
		{"pow(2, 0.5) * pow(2, 0.5)", "2"},
		{"max(1, 9, 4) - min(3, 2)", "7"},
		{"round(2.5)", "2"},
		{"log(8, 2)", "3"},
		{"pi", "3.14159265359"},
		{"1e3 + 1_000", "2000"},
		{"3 × 4 ÷ 2", "6"},
		{"2+2=", "4"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Evaluate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatNumber(v))
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expr := range []string{
		"", "1/0", "5 % 0", "2 +", "(1+2", "foo(1)", "x + 1", "sqrt(-1)", "1 $ 2", "log(0)", "1 2",
		`"text"`, "1 == 1", "len([1, 2])", "sqrt(1, 2)",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Evaluate(expr)
			assert.Error(t, err)
		})
	}
}

// --- HTTP tool tests ---

func TestSearch(t *testing.T) {
	gotQuery := make(chan string, 1)
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ddg", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("no_html"))
		assert.Contains(t, r.Header.Get("User-Agent"), "delegent/")
		gotQuery <- r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`{"AbstractText":"Go is a programming language.","AbstractURL":"https://en.wikipedia.org/wiki/Go","Answer":""}`))
	})
	reg := builtinRegistry(t, env)

	out, err := invoke(t, reg, "duckduckgo_search", `{"query":"golang"}`)
	require.NoError(t, err)
	assert.Equal(t, "golang", <-gotQuery)
	assert.Equal(t, "Go is a programming language.\nSource: https://en.wikipedia.org/wiki/Go", out)
}

func TestSearchFallbacks(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"AbstractText":"","Answer":"42"}`, "42"},
		{`{"AbstractText":"","Answer":{"type":"calc"},"Definition":"a def"}`, "a def"},
		{`{"RelatedTopics":[{"Name":"group"},{"Text":"first topic"}]}`, "first topic"},
		{`{}`, "No direct answer found."},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var r ddgResponse
			require.NoError(t, json.Unmarshal([]byte(tt.body), &r))
			assert.Equal(t, tt.want, r.best())
		})
	}
}

func TestSearchHTTPError(t *testing.T) {
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	_, err := invoke(t, builtinRegistry(t, env), "duckduckgo_search", `{"query":"x"}`)

	var te *ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestWeatherGeocodes(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/geo":
			assert.Equal(t, "Paris", r.URL.Query().Get("name"))
			_, _ = w.Write([]byte(`{"results":[
				{"name":"Paris","latitude":33.66,"longitude":-95.55,"country":"United States","country_code":"US"},
				{"name":"Paris","latitude":48.85,"longitude":2.35,"country":"France","country_code":"FR"}]}`))
		case "/forecast":
			assert.Equal(t, "48.85", r.URL.Query().Get("latitude"))
			assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
			_, _ = w.Write([]byte(`{"current_weather":{"temperature":18.3,"windspeed":11.2}}`))
		}
	})

	out, err := invoke(t, builtinRegistry(t, env), "get_weather", `{"city":"Paris","country":"fr"}`)
	require.NoError(t, err)
	assert.Equal(t, "Current weather in Paris, France: 18.3°C, wind speed 11.2 km/h", out)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/geo", "/forecast"}, calls)
}

func TestWeatherWithCoordinates(t *testing.T) {
	var calls atomic.Int32
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/forecast", r.URL.Path)
		_, _ = w.Write([]byte(`{"current_weather":{"temperature":-4,"windspeed":20}}`))
	})

	out, err := invoke(t, builtinRegistry(t, env), "get_weather", `{"city":"Tromsø","latitude":69.65,"longitude":18.96}`)
	require.NoError(t, err)
	assert.Equal(t, "Current weather in Tromsø: -4°C, wind speed 20 km/h", out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWeatherUnknownCity(t *testing.T) {
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	_, err := invoke(t, builtinRegistry(t, env), "get_weather", `{"city":"Atlantis"}`)
	assert.ErrorContains(t, err, `city "Atlantis" not found`)
}

func TestWikipedia(t *testing.T) {
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "search", q.Get("generator"))
		assert.Equal(t, "alan turing", q.Get("gsrsearch"))
		assert.Equal(t, "1", q.Get("exintro"))
		assert.Equal(t, "2", q.Get("exsentences"))
		_, _ = w.Write([]byte(`{"query":{"pages":[{"title":"Alan Turing","extract":"Alan Turing was a mathematician. He was born in 1912. He worked at Bletchley Park."}]}}`))
	})

	out, err := invoke(t, builtinRegistry(t, env), "wiki_summary", `{"query":"alan turing","sentences":2}`)
	require.NoError(t, err)
	assert.Equal(t, "Alan Turing: Alan Turing was a mathematician. He was born in 1912.", out)
}

func TestWikipediaNoResult(t *testing.T) {
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batchcomplete":true}`))
	})
	_, err := invoke(t, builtinRegistry(t, env), "wiki_summary", `{"query":"qwxzv"}`)
	assert.ErrorContains(t, err, "no Wikipedia article found")
}

func TestFirstSentences(t *testing.T) {
	text := "Smith went home. It rained! Was it late? Yes."
	assert.Equal(t, "Smith went home. It rained!", firstSentences(text, 2))
	assert.Equal(t, text, firstSentences(text, 10))
}

func TestFetchHTML(t *testing.T) {
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>Example</title><style>p{color:red}</style></head>
			<body><script>var x = 1;</script><h1>Hello</h1><p>First   paragraph.</p><p>Second</p></body></html>`))
	})
	ts := env.SearchURL[:strings.LastIndex(env.SearchURL, "/")]

	out, err := invoke(t, builtinRegistry(t, env), "fetch_url_content", `{"url":"`+ts+`/page"}`)
	require.NoError(t, err)
	assert.Equal(t, "Example\nHello\nFirst paragraph.\nSecond", out)
}

func TestFetchTruncates(t *testing.T) {
	env := testEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(strings.Repeat("é", 1500)))
	})
	ts := env.SearchURL[:strings.LastIndex(env.SearchURL, "/")]

	out, err := invoke(t, builtinRegistry(t, env), "fetch_url_content", `"`+ts+`/big"`)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 1000)+"...", out)
}

func TestFetchRefusesPrivateTargets(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("private target must not be reached")
	}))
	t.Cleanup(ts.Close)

	env := NewEnv(config.Defaults().Tools, silentLog())
	_, err := invoke(t, builtinRegistry(t, env), "fetch_url_content", `{"url":"`+ts.URL+`"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, errPrivateTarget)
}

func TestFetchRejectsScheme(t *testing.T) {
	reg := builtinRegistry(t, NewEnv(config.Defaults().Tools, nil))
	_, err := invoke(t, reg, "fetch_url_content", `{"url":"file:///etc/passwd"}`)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		addr    string
		private bool
	}{
		{"127.0.0.1:80", true},
		{"10.1.2.3:443", true},
		{"192.168.1.1:80", true},
		{"169.254.169.254:80", true},
		{"[::1]:80", true},
		{"93.184.216.34:443", false},
	}
	for _, tt := range tests {
		err := refusePrivate("tcp", tt.addr, nil)
		assert.Equal(t, tt.private, err != nil, tt.addr)
	}
}

// --- Text tool tests ---

func TestSentiment(t *testing.T) {
	reg := builtinRegistry(t, NewEnv(config.Defaults().Tools, nil))

	out, err := invoke(t, reg, "sentiment_analysis", `{"text":"I love this, it is great!"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Sentiment: positive (polarity=0."), out)

	out, err = invoke(t, reg, "sentiment_analysis", `{"text":"This was a terrible, boring movie."}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Sentiment: negative (polarity=-0."), out)

	out, err = invoke(t, reg, "sentiment_analysis", `{"text":"The meeting is on Tuesday."}`)
	require.NoError(t, err)
	assert.Equal(t, "Sentiment: neutral (polarity=0)", out)
}

func TestPolarityModifiers(t *testing.T) {
	good := Polarity("good")
	assert.Greater(t, good, 0.0)
	assert.Greater(t, Polarity("very good"), good)
	assert.Less(t, Polarity("not good"), 0.0)
	assert.Less(t, Polarity("it isn't good"), 0.0)
	assert.Greater(t, Polarity("GOOD!!!"), good)

	for _, text := range []string{"good", "terrible", "absolutely perfect", "the worst, most awful day"} {
		p := Polarity(text)
		assert.True(t, p >= -1 && p <= 1, "%s: %v", text, p)
	}
}

func TestJSONPretty(t *testing.T) {
	reg := builtinRegistry(t, NewEnv(config.Defaults().Tools, nil))

	out, err := invoke(t, reg, "json_pretty_print", `{"json_text":"{\"a\":1,\"b\":[true,null]}"}`)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1,\n  \"b\": [\n    true,\n    null\n  ]\n}", out)

	_, err = invoke(t, reg, "json_pretty_print", `{"json_text":"{not json"}`)
	assert.ErrorContains(t, err, "JSON parse error")
}
