// Package gatewaytest provides a fake upstream for tests of code that talks
// to the dataset and token endpoints.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/casemap/internal/adapters/gateway"
)

// Neighbourhood is a geometry row as the datastore returns it.
type Neighbourhood struct {
	Geometry  string  `json:"geometry"`
	AreaID    int64   `json:"areaId"`
	AreaName  string  `json:"areaName"`
	ShapeArea float64 `json:"shapeArea"`
}

// Case is a case row as the datastore returns it.
type Case struct {
	NeighbourhoodName     string `json:"neighbourhoodName"`
	Outcome               string `json:"outcome"`
	CurrentlyHospitalized string `json:"currentlyHospitalized"`
}

// PageRequest records one datastore query.
type PageRequest struct {
	Resource string
	Page     int
}

var (
	idPattern   = regexp.MustCompile(`id: "([^"]+)"`)
	pagePattern = regexp.MustCompile(`page: (\d+)`)
)

// Upstream is an httptest server speaking the upstream protocol.
type Upstream struct {
	*httptest.Server

	mu             sync.Mutex
	tokens         []string
	tokenStatus    int
	tokenCalls     int
	packages       map[string]gateway.Package
	neighbourhoods map[string][][]Neighbourhood
	cases          map[string][][]Case
	failPages      map[PageRequest]int
	pageRequests   []PageRequest
	dataEnvelope   bool
}

// New starts an Upstream that hands out the token "tok-1".
func New() *Upstream {
	u := &Upstream{
		tokens:         []string{"tok-1"},
		tokenStatus:    http.StatusOK,
		packages:       make(map[string]gateway.Package),
		neighbourhoods: make(map[string][][]Neighbourhood),
		cases:          make(map[string][][]Case),
		failPages:      make(map[PageRequest]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+gateway.PathToken, u.handleToken)
	mux.HandleFunc("POST "+gateway.PathPackageShow, u.handlePackageShow)
	mux.HandleFunc("POST "+gateway.PathDatastore, u.handleDatastore)
	u.Server = httptest.NewServer(mux)
	return u
}

// SetTokens sets the tokens returned by successive calls; the last repeats.
func (u *Upstream) SetTokens(tokens ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tokens = tokens
}

// SetTokenStatus makes the token endpoint answer with status.
func (u *Upstream) SetTokenStatus(status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tokenStatus = status
}

// AddPackage registers a package-show result.
func (u *Upstream) AddPackage(id string, pkg gateway.Package) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.packages[id] = pkg
}

// SetNeighbourhoodPages sets the geometry pages of a resource.
func (u *Upstream) SetNeighbourhoodPages(resource string, pages ...[]Neighbourhood) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.neighbourhoods[resource] = pages
}

// SetCasePages sets the case pages of a resource.
func (u *Upstream) SetCasePages(resource string, pages ...[]Case) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cases[resource] = pages
}

// FailPage makes one datastore page answer with status.
func (u *Upstream) FailPage(resource string, page, status int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failPages[PageRequest{Resource: resource, Page: page}] = status
}

// UseDataEnvelope wraps results as {"data": {"result": ...}}.
func (u *Upstream) UseDataEnvelope(on bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dataEnvelope = on
}

// TokenCalls returns how many times the token endpoint was hit.
func (u *Upstream) TokenCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tokenCalls
}

// PageRequests returns the datastore queries in arrival order.
func (u *Upstream) PageRequests() []PageRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]PageRequest(nil), u.pageRequests...)
}

func (u *Upstream) handleToken(w http.ResponseWriter, _ *http.Request) {
	u.mu.Lock()
	u.tokenCalls++
	status := u.tokenStatus
	idx := u.tokenCalls - 1
	if idx >= len(u.tokens) {
		idx = len(u.tokens) - 1
	}
	token := ""
	if idx >= 0 {
		token = u.tokens[idx]
	}
	u.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "token service unavailable", status)
		return
	}
	writeJSON(w, map[string]string{"token": token})
}

func (u *Upstream) handlePackageShow(w http.ResponseWriter, r *http.Request) {
	query, ok := readQuery(w, r)
	if !ok {
		return
	}
	id := match(idPattern, query)
	u.mu.Lock()
	pkg, found := u.packages[id]
	env := u.dataEnvelope
	u.mu.Unlock()
	if !found {
		http.Error(w, "unknown package "+id, http.StatusNotFound)
		return
	}
	u.writeResult(w, env, pkg)
}

func (u *Upstream) handleDatastore(w http.ResponseWriter, r *http.Request) {
	query, ok := readQuery(w, r)
	if !ok {
		return
	}
	req := PageRequest{Resource: match(idPattern, query)}
	req.Page, _ = strconv.Atoi(match(pagePattern, query))

	u.mu.Lock()
	u.pageRequests = append(u.pageRequests, req)
	status, fail := u.failPages[req]
	env := u.dataEnvelope
	var result interface{}
	switch {
	case strings.Contains(query, "neighbourhoodsRecords"):
		rows := []Neighbourhood{}
		if pages := u.neighbourhoods[req.Resource]; req.Page < len(pages) {
			rows = pages[req.Page]
		}
		result = map[string]interface{}{"neighbourhoodsRecords": rows}
	case strings.Contains(query, "covidRecords"):
		rows := []Case{}
		if pages := u.cases[req.Resource]; req.Page < len(pages) {
			rows = pages[req.Page]
		}
		result = map[string]interface{}{"covidRecords": rows}
	}
	u.mu.Unlock()

	if fail {
		http.Error(w, fmt.Sprintf("page %d unavailable", req.Page), status)
		return
	}
	if result == nil {
		http.Error(w, "unsupported query", http.StatusBadRequest)
		return
	}
	u.writeResult(w, env, result)
}

func (u *Upstream) writeResult(w http.ResponseWriter, dataEnvelope bool, result interface{}) {
	if dataEnvelope {
		writeJSON(w, map[string]interface{}{"data": map[string]interface{}{"result": result}})
		return
	}
	writeJSON(w, map[string]interface{}{"result": result})
}

func readQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Query == "" {
		http.Error(w, "missing query", http.StatusBadRequest)
		return "", false
	}
	return body.Query, true
}

func match(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Square returns a closed square polygon geometry encoded as a JSON string.
func Square(x, y, side float64) string {
	coords := [][][]float64{{
		{x, y}, {x + side, y}, {x + side, y + side}, {x, y + side}, {x, y},
	}}
	raw, _ := json.Marshal(map[string]interface{}{"type": "Polygon", "coordinates": coords})
	return string(raw)
}

// Neighbourhoods generates n rows named "Area <i> (<i>)" starting at first.
func Neighbourhoods(first, n int) []Neighbourhood {
	out := make([]Neighbourhood, 0, n)
	for i := first; i < first+n; i++ {
		out = append(out, Neighbourhood{
			Geometry:  Square(float64(i%50)*0.01-79.6, float64(i/50)*0.01+43.6, 0.01),
			AreaID:    int64(i),
			AreaName:  fmt.Sprintf("Area %d (%d)", i, i),
			ShapeArea: 1_000_000,
		})
	}
	return out
}

// ActivePackage is a package with one inactive CSV and one active datastore resource.
func ActivePackage(resourceID string, total int, lastModified string) gateway.Package {
	return gateway.Package{
		Title: "package " + resourceID,
		Resources: []gateway.Resource{
			{DatastoreActive: false, ID: resourceID + "-csv", Format: "CSV"},
			{DatastoreActive: true, ID: resourceID, Format: "JSON", LastModified: lastModified, Total: total},
		},
	}
}
