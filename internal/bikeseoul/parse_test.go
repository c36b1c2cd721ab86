package bikeseoul

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCookie(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "JSESSIONID=abc; WMONID=def", "JSESSIONID=abc; WMONID=def"},
		{"quoted", `"JSESSIONID=abc"`, "JSESSIONID=abc"},
		{"header prefix", "Cookie: JSESSIONID=abc", "JSESSIONID=abc"},
		{"pasted header block", "GET / HTTP/1.1\nHost: www.bikeseoul.com\nCookie: JSESSIONID=abc; WMONID=def\nAccept: */*", "JSESSIONID=abc; WMONID=def"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCookie(tt.raw))
		})
	}
}

func TestLooksLikeLoginPage(t *testing.T) {
	loginPage := `<html><form action="/j_spring_security_check" method="post">
		<input type="text" name="j_username"/><input type="password" name="j_password"/>
	</form></html>`
	assert.True(t, looksLikeLoginPage(loginPage))
	assert.True(t, looksLikeLoginPage(""))

	// Member pages carry data markers or a logout link, never treated as
	// a login page even when a password field is present elsewhere.
	memberPage := `<html><a href="/logout.do">로그아웃</a><div class="kcal_box"></div></html>`
	assert.False(t, looksLikeLoginPage(memberPage))

	favoritePage := `<html><li onclick="moveRentalStation('ST-3685', '502. 뚝섬유원지역 1번출구 앞')"></li></html>`
	assert.False(t, looksLikeLoginPage(favoritePage))
}

func TestExtractLoginForm(t *testing.T) {
	page := `<html>
	<form action="/search.do"><input type="text" name="q"/></form>
	<form action="/j_spring_security_check" method="post">
		<input type="hidden" name="_csrf" value="token123"/>
		<input type="text" name="memberId"/>
		<input type="password" name="memberPw"/>
	</form></html>`

	form := extractLoginForm(page)
	assert.Equal(t, "/j_spring_security_check", form.action)
	assert.Equal(t, "memberId", form.userField)
	assert.Equal(t, "memberPw", form.passField)
	assert.Equal(t, "token123", form.fields["_csrf"])
}

func TestExtractLoginForm_Defaults(t *testing.T) {
	form := extractLoginForm("<html>no form here</html>")
	assert.Equal(t, "/j_spring_security_check", form.action)
	assert.Equal(t, "j_username", form.userField)
	assert.Equal(t, "j_password", form.passField)
}

func TestParseFavorites(t *testing.T) {
	page := `<ul>
	<li>
		<div class="place"><a href="/app/station/moveStationRealtimeStatus.do?stationId=ST-3685">502. 뚝섬유원지역 1번출구 앞</a></div>
		<div class="bike">일반 / 새싹<p>12 / 3</p></div>
	</li>
	<li onclick="moveRentalStation('ST-100', '102. 망원역 1번출구 앞')">
		<div class="bike">일반 / 새싹<p>0 / 0</p></div>
	</li>
	<li>
		<a href="/somewhere-else.do">대여소 아님</a>
	</li>
	<li onclick="moveRentalStation('ST-100', '102. 망원역 1번출구 앞')"></li>
	</ul>`

	favs := parseFavorites(page)
	require.Len(t, favs, 2)

	assert.Equal(t, "ST-3685", favs[0].Code)
	assert.Equal(t, "502. 뚝섬유원지역 1번출구 앞", favs[0].Name)
	assert.Equal(t, "502", favs[0].NumericID)
	require.NotNil(t, favs[0].BikesGeneral)
	assert.Equal(t, 12, *favs[0].BikesGeneral)
	require.NotNil(t, favs[0].BikesSprout)
	assert.Equal(t, 3, *favs[0].BikesSprout)

	// Duplicate <li> entries collapse to one favorite.
	assert.Equal(t, "ST-100", favs[1].Code)
	require.NotNil(t, favs[1].BikesGeneral)
	assert.Equal(t, 0, *favs[1].BikesGeneral)
}

func TestParseHistoryPage(t *testing.T) {
	page := `<html>
	<input type="hidden" name="startDate" value="2026-08-01"/>
	<input type="hidden" name="endDate" value="2026-08-30"/>
	<div class="payment_box">
	<table>
		<tr><th>자전거</th></tr>
		<tr>
			<td>SPB-40123</td>
			<td>2026-08-30 18:02</td>
			<td>502. 뚝섬유원지역 1번출구 앞</td>
			<td>2026-08-30 18:32</td>
			<td>102. 망원역 1번출구 앞</td>
			<td>987654</td>
			<td>4.52 km</td>
		</tr>
		<tr>
			<td>SPB-40999</td>
			<td>2026-08-29 09:00</td>
			<td>102. 망원역 1번출구 앞</td>
			<td>2026-08-29 09:21</td>
			<td>502. 뚝섬유원지역 1번출구 앞</td>
			<td>987001</td>
			<td>없음</td>
		</tr>
	</table>
	</div></html>`

	parsed := parseHistoryPage(page)
	assert.Equal(t, "2026-08-01", parsed.PeriodStart)
	assert.Equal(t, "2026-08-30", parsed.PeriodEnd)
	require.Len(t, parsed.Rows, 2)

	first := parsed.Rows[0]
	assert.Equal(t, "SPB-40123", first.Bike)
	assert.Equal(t, "2026-08-30 18:02", first.RentAt)
	assert.Equal(t, "502. 뚝섬유원지역 1번출구 앞", first.RentStation)
	assert.Equal(t, "987654", first.HistoryID)
	require.NotNil(t, first.DistanceKm)
	assert.InDelta(t, 4.52, *first.DistanceKm, 0.001)

	// Unparseable distance stays absent; the row survives.
	assert.Nil(t, parsed.Rows[1].DistanceKm)
	assert.Equal(t, "SPB-40999", parsed.Rows[1].Bike)
}

func TestParseSiteTime(t *testing.T) {
	got := ParseSiteTime("2026-08-30 18:32")
	require.NotNil(t, got)
	// 18:32 KST == 09:32 UTC.
	assert.Equal(t, time.Date(2026, 8, 30, 9, 32, 0, 0, time.UTC), *got)

	dotted := ParseSiteTime("2026.08.30")
	require.NotNil(t, dotted)
	assert.Equal(t, time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC), *dotted)

	assert.Nil(t, ParseSiteTime("null"))
	assert.Nil(t, ParseSiteTime("언제인지 모름"))
}

func TestRealtimeRowToStation(t *testing.T) {
	row := map[string]any{
		"stationId":                "st-3685",
		"stationName":              "502. 뚝섬유원지역 1번출구 앞",
		"stationLatitude":          "37.5314",
		"stationLongitude":         127.0668,
		"parkingBikeTotCnt":        "0",
		"parkingBikeTotCntGeneral": "4",
		"parkingQRBikeCnt":         float64(2),
		"parkingELECBikeCnt":       "1",
	}

	st, ok := realtimeRowToStation(row)
	require.True(t, ok)
	assert.Equal(t, "ST-3685", st.Code)
	assert.Equal(t, "502", st.NumericID)
	assert.Equal(t, "뚝섬유원지역 1번출구 앞", st.Name)
	assert.Equal(t, 6, st.BikesGeneral) // general + QR
	assert.Equal(t, 1, st.BikesSprout)  // electric counts as sprout
	assert.Equal(t, 7, st.BikesTotal)
	assert.InDelta(t, 37.5314, st.Lat, 0.0001)
	assert.InDelta(t, 127.0668, st.Lon, 0.0001)

	_, ok = realtimeRowToStation(map[string]any{"stationName": "코드 없음"})
	assert.False(t, ok)
}
