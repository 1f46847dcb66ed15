package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const (
	testUser = "gearhead"
	testPass = "correct-horse"
)

const loginFormHTML = `<html><body>
<form action="/e/login" method="post">
<input type="hidden" name="_csrfToken" value="token-123"/>
<input type="hidden" name="_Token[fields]" value="fields-abc"/>
<input type="text" name="username"/>
<input type="password" name="password"/>
</form>
</body></html>`

const offersPageHTML = `<html><body>
<table class="offers">
<tr><th>ID</th><th>Date</th><th>Price</th><th>Module</th><th>Seller</th><th>Region</th><th></th></tr>
<tr>
<td><a href="/e/offers/view/2001">2001</a></td>
<td>2024-05-01</td>
<td>&euro;200,00</td>
<td><a href="/e/modules/4034">Maths</a><div class="description">Function generator, barely used</div></td>
<td><a href="/e/users/77">synthdealer</a></td>
<td>EU</td>
<td><a href="/e/offers/view/2001">View</a></td>
</tr>
<tr>
<td><a href="/e/offers/view/2002">2002</a></td>
<td>2024-05-02</td>
<td>$150.00</td>
<td><a href="/e/modules/5021">Plaits</a></td>
<td><a href="/e/users/43">modseller</a></td>
<td>USA</td>
<td><a href="/e/offers/view/2002">View</a></td>
</tr>
<tr><td>malformed</td><td>row</td><td>too few cells</td></tr>
</table>
</body></html>`

const detailPageHTML = `<html><body>
<h1>Maths</h1>
<table>
<tr><th>Price</th><td>&euro;200,00</td></tr>
<tr><th>Seller</th><td>synthdealer</td></tr>
<tr><th>Region</th><td>EU</td></tr>
</table>
<div class="description">Like new, no scratches</div>
<h2>Price History</h2>
<table>
<tr><th>Date</th><th>Price</th><th>Condition</th></tr>
<tr><td>2024-01-15</td><td>&euro;250,00</td><td>Used</td></tr>
<tr><td>2024-02-20</td><td>&euro;240,00</td><td>Used</td></tr>
<tr><td>2024-03-12</td><td>&euro;260,00</td><td>Like new</td></tr>
</table>
</body></html>`

const searchPageHTML = `<html><body>
<table class="modules">
<tr><th>Manufacturer</th><th>Name</th><th>HP</th></tr>
<tr><td>Make Noise</td><td><a href="/e/modules/4034">Maths</a></td><td>20</td></tr>
<tr><td>Mutable Instruments</td><td><a href="/e/modules/5021">Plaits</a></td><td>12</td></tr>
</table>
</body></html>`

// newFakeMarket serves the minimal page contract the client depends on.
func newFakeMarket(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/e/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			fmt.Fprint(w, loginFormHTML)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		// The anti-forgery fields must come back verbatim.
		if r.PostForm.Get("_csrfToken") != "token-123" || r.PostForm.Get("_Token[fields]") != "fields-abc" {
			http.Error(w, "missing token", http.StatusForbidden)
			return
		}
		if r.PostForm.Get("username") == testUser && r.PostForm.Get("password") == testPass {
			http.Redirect(w, r, "/e/dashboard", http.StatusFound)
			return
		}
		// Bad credentials land back on the login page.
		fmt.Fprint(w, loginFormHTML)
	})

	mux.HandleFunc("/e/dashboard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>dashboard</body></html>")
	})

	mux.HandleFunc("/e/offers", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, "<html><body><p>No more offers</p></body></html>")
			return
		}
		fmt.Fprint(w, offersPageHTML)
	})

	mux.HandleFunc("/e/offers/view/2001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPageHTML)
	})

	mux.HandleFunc("/e/modules/browser", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPageHTML)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(baseURL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestAuthenticateSuccess(t *testing.T) {
	server := newFakeMarket(t)
	client := newTestClient(t, server.URL)

	if err := client.Authenticate(context.Background(), testUser, testPass); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if !client.Authenticated() {
		t.Errorf("client should report authenticated")
	}
}

func TestAuthenticateInvalidCredentials(t *testing.T) {
	server := newFakeMarket(t)
	client := newTestClient(t, server.URL)

	err := client.Authenticate(context.Background(), testUser, "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if client.Authenticated() {
		t.Errorf("client should not report authenticated")
	}
}

func TestAuthenticateUnreachable(t *testing.T) {
	server := newFakeMarket(t)
	client := newTestClient(t, server.URL)
	server.Close()

	err := client.Authenticate(context.Background(), testUser, testPass)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestListPage(t *testing.T) {
	server := newFakeMarket(t)
	client := newTestClient(t, server.URL)

	records, err := client.ListPage(context.Background(), "EU", 1)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (malformed row skipped)", len(records))
	}

	first := records[0]
	if first.ExternalID != "2001" {
		t.Errorf("external id = %q, want 2001", first.ExternalID)
	}
	if first.Price != 200.0 || first.Currency != "EUR" || !first.PriceOK {
		t.Errorf("price = %v %s ok=%v, want 200 EUR ok", first.Price, first.Currency, first.PriceOK)
	}
	if first.ModuleID != "4034" || first.ModuleName != "Maths" {
		t.Errorf("module = %q %q", first.ModuleID, first.ModuleName)
	}
	if first.Description != "Function generator, barely used" {
		t.Errorf("description = %q", first.Description)
	}
	if first.Seller != "synthdealer" || first.Region != "EU" {
		t.Errorf("seller/region = %q %q", first.Seller, first.Region)
	}
	if first.URL != server.URL+"/e/offers/view/2001" {
		t.Errorf("listing url = %q", first.URL)
	}

	second := records[1]
	if second.ExternalID != "2002" || second.Currency != "USD" || second.Price != 150.0 {
		t.Errorf("second record = %+v", second)
	}
	if second.Description != "" {
		t.Errorf("second description = %q, want empty", second.Description)
	}
}

func TestListPageEndOfPagination(t *testing.T) {
	server := newFakeMarket(t)
	client := newTestClient(t, server.URL)

	records, err := client.ListPage(context.Background(), "EU", 2)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0 on pageless page", len(records))
	}
}

func TestListPageFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)

	if _, err := client.ListPage(context.Background(), "EU", 1); err == nil {
		t.Fatalf("expected error on 500 response")
	}
}

func TestListingDetail(t *testing.T) {
	server := newFakeMarket(t)
	client := newTestClient(t, server.URL)

	detail, err := client.ListingDetail(context.Background(), server.URL+"/e/offers/view/2001")
	if err != nil {
		t.Fatalf("listing detail: %v", err)
	}

	if detail.Name != "Maths" {
		t.Errorf("name = %q", detail.Name)
	}
	if detail.Price != 200.0 || detail.Currency != "EUR" {
		t.Errorf("price = %v %s", detail.Price, detail.Currency)
	}
	if detail.Condition != "Like new, no scratches" {
		t.Errorf("condition = %q", detail.Condition)
	}
	if detail.Seller != "synthdealer" || detail.Region != "EU" {
		t.Errorf("seller/region = %q %q", detail.Seller, detail.Region)
	}

	if len(detail.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(detail.History))
	}
	want := []float64{250, 240, 260}
	for i, entry := range detail.History {
		if entry.Price != want[i] || entry.Currency != "EUR" {
			t.Errorf("history[%d] = %+v", i, entry)
		}
	}
	if detail.History[2].Cond != "Like new" {
		t.Errorf("history condition = %q", detail.History[2].Cond)
	}
}

func TestListingDetailWithoutHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Plaits</h1>
<table><tr><th>Price</th><td>$150.00</td></tr></table></body></html>`)
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)

	detail, err := client.ListingDetail(context.Background(), server.URL+"/anything")
	if err != nil {
		t.Fatalf("listing detail: %v", err)
	}
	if len(detail.History) != 0 {
		t.Errorf("history = %v, want none", detail.History)
	}
	if detail.Price != 150.0 || detail.Currency != "USD" {
		t.Errorf("price = %v %s", detail.Price, detail.Currency)
	}
}

func TestSearchModules(t *testing.T) {
	server := newFakeMarket(t)
	client := newTestClient(t, server.URL)

	results, err := client.SearchModules(context.Background(), "maths")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ExternalID != "4034" || results[0].Name != "Maths" || results[0].Manufacturer != "Make Noise" {
		t.Errorf("first result = %+v", results[0])
	}
}
