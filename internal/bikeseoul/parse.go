package bikeseoul

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The member pages are server-rendered HTML with no stable structure, so
// parsing stays deliberately tolerant: regex extraction with fallbacks,
// mirroring how the markup actually varies between site releases.

var (
	tagRE   = regexp.MustCompile(`<[^>]+>`)
	brRE    = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>`)
	liRE    = regexp.MustCompile(`(?is)<li\b[^>]*>(.*?)</li>`)
	tableRE = regexp.MustCompile(`(?is)<table[^>]*>(.*?)</table>`)
	trRE    = regexp.MustCompile(`(?is)<tr[^>]*>(.*?)</tr>`)
	tdRE    = regexp.MustCompile(`(?is)<td[^>]*>(.*?)</td>`)

	stationCodeRE = regexp.MustCompile(`(?i)(ST-\d+)`)
	moveStationRE = regexp.MustCompile(`(?i)moveRentalStation\(\s*'([^']+)'\s*,\s*'([^']+)'\s*\)`)
	favAnchorRE   = regexp.MustCompile(`(?is)<a[^>]*href=["']([^"']*ST-[^"']+)["'][^>]*>(.*?)</a>`)
	bikeCountsRE  = regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*\bbike\b[^"']*["'][^>]*>.*?<p>\s*(\d+)\s*/\s*(\d+)\s*</p>`)
	namePrefixRE  = regexp.MustCompile(`^\s*(\d+)\.`)

	loginFormRE     = regexp.MustCompile(`(?i)<form[^>]+action=["'][^"']*(j_spring_security_check|login)[^"']*["']`)
	passwordInputRE = regexp.MustCompile(`(?i)<input[^>]+type=["']password["']`)
	logoutMarkerRE  = regexp.MustCompile(`(?i)(logout|/logout|logout\.do)`)
	dataMarkerRE    = regexp.MustCompile(`(?i)(kcal_box|payment_box|moveRentalStation\(\s*'ST-[^']+'\s*,\s*'[^']+'\s*\))`)

	formRE        = regexp.MustCompile(`(?is)<form[^>]*>(.*?)</form>`)
	formActionRE  = regexp.MustCompile(`(?i)action=["']([^"']+)["']`)
	inputTagRE    = regexp.MustCompile(`(?i)<input[^>]*>`)
	attrNameRE    = regexp.MustCompile(`(?i)name=["']([^"']+)["']`)
	attrTypeRE    = regexp.MustCompile(`(?i)type=["']([^"']+)["']`)
	attrValueRE   = regexp.MustCompile(`(?i)value=["']([^"']*)["']`)
	hiddenInputRE = regexp.MustCompile(`(?i)name=["']([^"']+)["'][^>]*value=["']([^"']+)["']`)

	dateTimeRE = regexp.MustCompile(`(20\d{2})[-./](\d{1,2})[-./](\d{1,2})(?:\s+(\d{1,2})(?::(\d{2}))?(?::(\d{2}))?)?`)
	floatRE    = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

	kcalBoxRE    = regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*\bkcal_box\b[^"']*["'][^>]*>(.*?)</div>`)
	kcalPairRE   = regexp.MustCompile(`(?is)(?:<img[^>]*alt=["']([^"']+)["'][^>]*>|<span[^>]*>([^<]+)</span>)\s*(?:</?[^>]*>\s*)*([\d.,]+\s*[^<\s]*)`)
	paymentBoxRE = regexp.MustCompile(`(?is)<div[^>]*class=["'][^"']*\b(?:payment_box|paymentBox)\b[^"']*["'][^>]*>(.*?)</div>`)
)

// seoulTZ is the site's local timezone; all page timestamps are KST.
var seoulTZ = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}()

// NormalizeCookie cleans a cookie pasted from browser devtools: surrounding
// quotes, a "Cookie:" prefix, or a whole multi-line request-header block.
func NormalizeCookie(raw string) string {
	v := strings.Trim(strings.TrimSpace(raw), `"'`)
	if v == "" {
		return ""
	}

	if strings.ContainsAny(v, "\r\n") {
		var lines []string
		for _, line := range strings.FieldsFunc(v, func(r rune) bool { return r == '\n' || r == '\r' }) {
			line = strings.TrimSpace(line)
			if line != "" {
				lines = append(lines, line)
			}
		}
		cookieLine := ""
		for _, line := range lines {
			low := strings.ToLower(line)
			if strings.HasPrefix(low, "cookie:") || strings.HasPrefix(low, "cookie ") {
				cookieLine = line
				break
			}
		}
		if cookieLine != "" {
			v = cookieLine
		} else {
			v = strings.Join(lines, " ")
		}
		v = strings.Join(strings.Fields(v), " ")
	}

	low := strings.ToLower(v)
	if strings.HasPrefix(low, "cookie:") {
		v = strings.TrimSpace(v[len("cookie:"):])
	} else if strings.HasPrefix(low, "cookie ") {
		v = strings.TrimSpace(v[len("cookie "):])
	}
	return v
}

// stripTags removes markup and entity-escapes from a fragment.
func stripTags(s string) string {
	if s == "" {
		return ""
	}
	s = brRE.ReplaceAllString(s, "\n")
	s = tagRE.ReplaceAllString(s, "")
	return strings.TrimSpace(strings.ReplaceAll(html.UnescapeString(s), " ", " "))
}

// looksLikeLoginPage decides whether the site answered with its login form
// instead of member content, i.e. the cookie has expired. Pages carrying
// member data markers or a logout link are never login pages.
func looksLikeLoginPage(body string) bool {
	if body == "" {
		return true
	}
	if dataMarkerRE.MatchString(body) {
		return false
	}
	if logoutMarkerRE.MatchString(body) {
		return false
	}
	hasPassword := passwordInputRE.MatchString(body)
	if !hasPassword {
		return false
	}
	return strings.Contains(strings.ToLower(body), "j_spring_security_check") ||
		loginFormRE.MatchString(body)
}

// loginForm is the scraped login form: its POST target, all input fields
// (hidden CSRF tokens included) and the credential field names.
type loginForm struct {
	action    string
	fields    map[string]string
	userField string
	passField string
}

// extractLoginForm scrapes the login form from the login page. Field names
// fall back to the Spring Security defaults when detection fails.
func extractLoginForm(body string) loginForm {
	form := loginForm{fields: make(map[string]string)}

	var formHTML string
	for _, m := range formRE.FindAllStringSubmatch(body, -1) {
		fragment := m[0]
		am := formActionRE.FindStringSubmatch(fragment)
		if am == nil {
			continue
		}
		action := strings.TrimSpace(am[1])
		if strings.Contains(action, "j_spring_security_check") || strings.Contains(action, "login") {
			form.action = action
			formHTML = m[1]
			break
		}
		if form.action == "" {
			form.action = action
			formHTML = m[1]
		}
	}
	if form.action == "" {
		form.action = "/j_spring_security_check"
	}

	for _, tag := range inputTagRE.FindAllString(formHTML, -1) {
		nm := attrNameRE.FindStringSubmatch(tag)
		if nm == nil {
			continue
		}
		name := strings.TrimSpace(nm[1])

		inputType := "text"
		if tm := attrTypeRE.FindStringSubmatch(tag); tm != nil {
			inputType = strings.ToLower(strings.TrimSpace(tm[1]))
		}
		value := ""
		if vm := attrValueRE.FindStringSubmatch(tag); vm != nil {
			value = vm[1]
		}
		form.fields[name] = value

		lname := strings.ToLower(name)
		if inputType == "password" && form.passField == "" {
			form.passField = name
		}
		if form.userField == "" && (inputType == "text" || inputType == "email") {
			if strings.Contains(lname, "user") || strings.Contains(lname, "id") || strings.Contains(lname, "login") {
				form.userField = name
			}
		}
	}
	if form.userField == "" {
		form.userField = "j_username"
	}
	if form.passField == "" {
		form.passField = "j_password"
	}
	return form
}

// parseFavorites extracts favorite stations with their inline dock counts
// from the favorites page. Each favorite lives in its own <li>, carrying
// either a place anchor or a moveRentalStation('ST-x','name') handler, plus
// an optional "general / sprout" count block.
func parseFavorites(body string) []Favorite {
	if body == "" {
		return nil
	}

	var out []Favorite
	seen := make(map[string]bool)

	for _, li := range liRE.FindAllStringSubmatch(body, -1) {
		// The station handler sometimes sits on the <li> tag itself, so
		// searches run over the whole element, opening tag included.
		item := li[0]

		var code, name string
		if m := favAnchorRE.FindStringSubmatch(item); m != nil {
			if cm := stationCodeRE.FindStringSubmatch(m[1]); cm != nil {
				code = strings.ToUpper(cm[1])
			}
			name = stripTags(m[2])
		}
		if code == "" || name == "" {
			if m := moveStationRE.FindStringSubmatch(item); m != nil {
				if code == "" {
					code = strings.ToUpper(strings.TrimSpace(m[1]))
				}
				if name == "" {
					name = strings.TrimSpace(m[2])
				}
			}
		}
		if code == "" || name == "" || seen[code] {
			continue
		}
		seen[code] = true

		fav := Favorite{Code: code, Name: name}
		if m := namePrefixRE.FindStringSubmatch(name); m != nil {
			fav.NumericID = m[1]
		}
		if m := bikeCountsRE.FindStringSubmatch(item); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				fav.BikesGeneral = &n
			}
			if n, err := strconv.Atoi(m[2]); err == nil {
				fav.BikesSprout = &n
			}
		}
		out = append(out, fav)
	}
	return out
}

// parseHistoryPage parses the use-history page: period range, the aggregate
// stats box and the ride table (most recent ride first, as rendered).
func parseHistoryPage(body string) HistoryPage {
	page := HistoryPage{Stats: parseRideStats(body)}
	page.PeriodStart, page.PeriodEnd = extractPeriodRange(body)
	page.Rows = parseHistoryTable(body)
	return page
}

func parseHistoryTable(body string) []RideRow {
	block := body
	if m := paymentBoxRE.FindStringSubmatch(body); m != nil {
		block = m[1]
	}

	tables := tableRE.FindAllStringSubmatch(block, -1)
	if len(tables) == 0 && block != body {
		tables = tableRE.FindAllStringSubmatch(body, -1)
	}

	for _, table := range tables {
		var rows []RideRow
		for _, tr := range trRE.FindAllStringSubmatch(table[1], -1) {
			tds := tdRE.FindAllStringSubmatch(tr[1], -1)
			if len(tds) < 5 {
				continue
			}
			cells := make([]string, len(tds))
			empty := true
			for i, td := range tds {
				cells[i] = stripTags(td[1])
				if cells[i] != "" {
					empty = false
				}
			}
			if empty {
				continue
			}

			row := RideRow{
				Bike:          cells[0],
				RentAt:        cells[1],
				RentStation:   cells[2],
				ReturnAt:      cells[3],
				ReturnStation: cells[4],
			}
			if len(cells) > 5 {
				row.HistoryID = cells[5]
			}
			if len(cells) > 6 {
				if f, ok := parseLooseFloat(cells[6]); ok {
					row.DistanceKm = &f
				}
			}
			rows = append(rows, row)
		}
		if len(rows) > 0 {
			return rows
		}
	}
	return nil
}

// parseRideStats pulls the label/value pairs out of the kcal_box block
// (distance, calories, saved carbon).
func parseRideStats(body string) RideStats {
	m := kcalBoxRE.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	stats := make(RideStats)
	for _, pair := range kcalPairRE.FindAllStringSubmatch(m[1], -1) {
		key := strings.TrimSpace(pair[1])
		if key == "" {
			key = strings.TrimSpace(pair[2])
		}
		value := strings.TrimSpace(pair[3])
		if key != "" && value != "" {
			stats[key] = value
		}
	}
	if len(stats) == 0 {
		return nil
	}
	return stats
}

// extractPeriodRange finds the query period of the history page, first from
// the form inputs, then from the first two dates anywhere in the page.
func extractPeriodRange(body string) (start, end string) {
	for _, m := range hiddenInputRE.FindAllStringSubmatch(body, -1) {
		name := strings.ToLower(m[1])
		dm := dateTimeRE.FindStringSubmatch(m[2])
		if dm == nil {
			continue
		}
		normalized := normalizeDate(dm)
		if start == "" && (strings.Contains(name, "start") || strings.Contains(name, "from")) {
			start = normalized
		}
		if end == "" && (strings.Contains(name, "end") || strings.Contains(name, "to")) {
			end = normalized
		}
	}
	if start == "" || end == "" {
		dates := dateTimeRE.FindAllStringSubmatch(body, 2)
		if len(dates) >= 2 {
			if start == "" {
				start = normalizeDate(dates[0])
			}
			if end == "" {
				end = normalizeDate(dates[1])
			}
		}
	}
	return start, end
}

func normalizeDate(m []string) string {
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// ParseSiteTime parses a site-local timestamp ("2026-08-30 18:32" and the
// dotted/slashed variants) into UTC. Returns nil when nothing parses.
func ParseSiteTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}
	m := dateTimeRE.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	hh, _ := strconv.Atoi(m[4])
	mm, _ := strconv.Atoi(m[5])
	ss, _ := strconv.Atoi(m[6])
	t := time.Date(y, time.Month(mo), d, hh, mm, ss, 0, seoulTZ).UTC()
	return &t
}

// parseTicketExpiry finds the pass expiry timestamp on the "my page" HTML.
func parseTicketExpiry(body string) *time.Time {
	if body == "" {
		return nil
	}
	return ParseSiteTime(body)
}

func parseLooseFloat(s string) (float64, bool) {
	m := floatRE.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseLooseInt(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func parseLooseFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
