package binance

import "strings"

type Config struct {
	Symbol     string
	WSProxyURL string
	Buffer     int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.Symbol = strings.ToUpper(strings.TrimSpace(out.Symbol))
	out.WSProxyURL = strings.TrimSpace(out.WSProxyURL)
	if out.Buffer <= 0 {
		out.Buffer = 1024
	}
	return out
}
