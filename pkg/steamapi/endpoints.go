package steamapi

import (
	"net/url"
	"strings"
)

// detailsURL builds the store appdetails request.
func (c *Client) detailsURL(id string) string {
	q := url.Values{}
	q.Set("appids", id)
	if c.config.Language != "" {
		q.Set("l", c.config.Language)
	}
	return strings.TrimRight(c.config.StoreBaseURL, "/") + "/api/appdetails?" + q.Encode()
}

// newsURL builds the request for the single newest news item.
func (c *Client) newsURL(id string) string {
	q := url.Values{}
	q.Set("appid", id)
	q.Set("count", "1")
	return strings.TrimRight(c.config.APIBaseURL, "/") + "/ISteamNews/GetNewsForApp/v2/?" + q.Encode()
}

// playersURL builds the current player count request.
func (c *Client) playersURL(id string) string {
	q := url.Values{}
	q.Set("appid", id)
	return strings.TrimRight(c.config.APIBaseURL, "/") + "/ISteamUserStats/GetNumberOfCurrentPlayers/v1/?" + q.Encode()
}

// appDetailsEntry is one value of the appdetails response, keyed by app id.
type appDetailsEntry struct {
	// Success is absent on some relay rewrites; only an explicit false
	// marks the id as invalid.
	Success *bool `json:"success"`
	Data    *struct {
		Name        string `json:"name"`
		HeaderImage string `json:"header_image"`
	} `json:"data"`
}

type newsResponse struct {
	AppNews *struct {
		NewsItems []struct {
			Date int64 `json:"date"`
		} `json:"newsitems"`
	} `json:"appnews"`
}

type playersResponse struct {
	Response *struct {
		PlayerCount int `json:"player_count"`
		Result      int `json:"result"`
	} `json:"response"`
}
