package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// fakeAPI is a minimal Bot API double recording sendMessage calls.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []sendMessageRequest
	updates  []update
	sendFail func(n int) (int, string) // maps call number to error code and description
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		switch method {
		case "sendMessage":
			var req sendMessageRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decoding sendMessage: %v", err)
			}
			if f.sendFail != nil {
				if code, desc := f.sendFail(len(f.sent)); code != 0 {
					f.sent = append(f.sent, req)
					fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":%q}`, code, desc)
					return
				}
			}
			f.sent = append(f.sent, req)
			fmt.Fprint(w, `{"ok":true,"result":{}}`)
		case "getUpdates":
			updates := f.updates
			f.updates = nil
			out, _ := json.Marshal(updates)
			fmt.Fprintf(w, `{"ok":true,"result":%s}`, out)
		case "setMyCommands":
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		default:
			t.Errorf("unexpected method %q", method)
		}
	})
}

func (f *fakeAPI) sentMessages() []sendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendMessageRequest(nil), f.sent...)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{Token: "test-token", BaseURL: srv.URL})
}

func TestSendMessage(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)

	if err := c.SendMessage(context.Background(), 42, "<b>hi</b>", false); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	sent := api.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sent))
	}
	got := sent[0]
	if got.ChatID != 42 || got.Text != "<b>hi</b>" || got.ParseMode != "HTML" {
		t.Errorf("unexpected request: %+v", got)
	}
}

func TestSendMessage_Oversize(t *testing.T) {
	api := &fakeAPI{
		sendFail: func(int) (int, string) {
			return 400, "Bad Request: message is too long"
		},
	}
	c := newTestClient(t, api)

	err := c.SendMessage(context.Background(), 42, "huge", false)
	if !errors.Is(err, ErrOversize) {
		t.Fatalf("got %v, want ErrOversize", err)
	}
	if n := len(api.sentMessages()); n != 1 {
		t.Errorf("oversize rejection retried %d times, want none", n-1)
	}
}

func TestSendMessage_OtherErrorNotOversize(t *testing.T) {
	api := &fakeAPI{
		sendFail: func(int) (int, string) {
			return 403, "Forbidden: bot was blocked by the user"
		},
	}
	c := newTestClient(t, api)

	err := c.SendMessage(context.Background(), 42, "hi", false)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrOversize) {
		t.Error("transport error classified as oversize")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 403 {
		t.Errorf("got %v, want *APIError with code 403", err)
	}
}

func TestSendMessage_RetriesRateLimit(t *testing.T) {
	api := &fakeAPI{
		sendFail: func(n int) (int, string) {
			if n == 0 {
				return 429, "Too Many Requests: retry later"
			}
			return 0, ""
		},
	}
	c := newTestClient(t, api)

	if err := c.SendMessage(context.Background(), 42, "hi", false); err != nil {
		t.Fatalf("SendMessage failed after rate limit: %v", err)
	}
	if n := len(api.sentMessages()); n != 2 {
		t.Errorf("made %d attempts, want 2", n)
	}
}

func TestHintedBackOff_ConsumesHintOnce(t *testing.T) {
	bo := &hintedBackOff{BackOff: backoff.NewConstantBackOff(time.Second)}

	bo.hint = 7 * time.Second
	if d := bo.NextBackOff(); d != 7*time.Second {
		t.Errorf("hinted wait = %v, want 7s", d)
	}
	// The hint fired; subsequent waits come from the wrapped policy alone.
	if d := bo.NextBackOff(); d != time.Second {
		t.Errorf("wait after hint = %v, want 1s", d)
	}
	if d := bo.NextBackOff(); d != time.Second {
		t.Errorf("wait after hint = %v, want 1s", d)
	}
}

func TestBot_StartBootstrap(t *testing.T) {
	start := &incomingMessage{Text: "/start"}
	start.Chat.ID = 777
	api := &fakeAPI{
		updates: []update{
			{UpdateID: 1}, // non-message update, ignored
			{UpdateID: 2, Message: start},
		},
	}

	c := newTestClient(t, api)
	bot := NewBot(c, 0)

	got := make(chan int64, 1)
	bot.OnStart(func(chatID int64) { got <- chatID })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bot.Poll(ctx)
		close(done)
	}()

	select {
	case chatID := <-got:
		if chatID != 777 {
			t.Errorf("bootstrap chat id = %d, want 777", chatID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("bootstrap callback never invoked")
	}
	// The welcome send happens after the callback fires; wait for it to
	// land before tearing down the poll context.
	deadline := time.Now().Add(5 * time.Second)
	for len(api.sentMessages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	// The welcome reply goes back to the /start chat.
	sent := api.sentMessages()
	if len(sent) == 0 || !strings.Contains(sent[0].Text, "Hello") {
		t.Fatalf("welcome message not sent: %+v", sent)
	}
	if sent[0].ChatID != 777 {
		t.Errorf("welcome sent to chat %d, want 777", sent[0].ChatID)
	}
}

func TestBot_SetCommands(t *testing.T) {
	api := &fakeAPI{}
	c := newTestClient(t, api)
	if err := NewBot(c, 0).SetCommands(context.Background()); err != nil {
		t.Fatalf("SetCommands failed: %v", err)
	}
}
