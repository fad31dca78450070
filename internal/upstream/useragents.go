package upstream

import "math/rand"

// UAMode selects how a User-Agent is picked for each outbound
// request (§4.1 "anti-detection").
type UAMode int

const (
	// UAFixed always sends the first entry in userAgents.
	UAFixed UAMode = iota
	// UARandom selects uniformly at random per request.
	UARandom
)

// userAgents is a pool of five realistic browser User-Agent strings
// (§4.1), grounded in the header set used by
// other_examples' VietCap gateway and generalized to a rotating pool.
var userAgents = [5]string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",
}

func pickUserAgent(mode UAMode) string {
	if mode == UARandom {
		return userAgents[rand.Intn(len(userAgents))]
	}
	return userAgents[0]
}

// applyAntiDetectionHeaders sets the fixed companion headers sent on
// every upstream request alongside the rotating User-Agent (§4.1).
func applyAntiDetectionHeaders(h interface{ Set(string, string) }, ua string) {
	h.Set("User-Agent", ua)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9,vi;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Referer", "https://trading.vietcap.com.vn/")
	h.Set("Origin", "https://trading.vietcap.com.vn")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-site")
}
