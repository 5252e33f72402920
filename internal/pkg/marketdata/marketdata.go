package marketdata

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/coinchartfun/coinchart-backend/internal/pkg/cache"
)

// Risk files are produced per exchange by the analytics pipeline and dropped
// into the data directory.
var riskFiles = map[string]string{
	"binance": "binance_risks.csv",
	"btcc":    "btcc_risks.csv",
}

const (
	signalsFile    = "signals.json"
	symbolListFile = "all_symbols.json"
)

var ErrUnknownSource = errors.New("unknown data source")

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)

// TokenRisk is one row of the exchange risk sheet, shaped the way the
// frontend bubble chart consumes it.
type TokenRisk struct {
	Name         string   `json:"name"`
	Symbol       string   `json:"symbol"`
	Price        string   `json:"price"`
	Volume       string   `json:"volume"`
	ChainID      string   `json:"chainId"`
	TokenAddress string   `json:"tokenAddress"`
	Icon         string   `json:"icon"`
	Risk         int      `json:"risk"`
	RiskUSDT     int      `json:"risk_usdt"`
	Change3M     string   `json:"3mChange"`
	Change1M     string   `json:"1mChange"`
	Change2W     string   `json:"2wChange"`
	BubbleSize   string   `json:"bubbleSize"`
	Warnings     []string `json:"warnings"`
}

// Service reads the analytics pipeline's file drops: risk sheets (CSV),
// trading signals (JSON), candlestick history (NDJSON) and the symbol list.
// Results are cached in Redis when a TTL is configured.
type Service struct {
	dataDir   string
	candleDir string
	cacheTTL  time.Duration
}

// NewService creates a market data reader. cacheTTL of zero disables the
// Redis cache layer.
func NewService(dataDir, candleDir string, cacheTTL time.Duration) *Service {
	return &Service{dataDir: dataDir, candleDir: candleDir, cacheTTL: cacheTTL}
}

// Risks parses the risk sheet for one exchange. Rows whose risk columns do
// not parse as integers are skipped.
func (s *Service) Risks(source string) (map[string]TokenRisk, error) {
	fileName, ok := riskFiles[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	cacheKey := "marketdata:risks:" + source
	if raw, ok := s.cached(cacheKey); ok {
		var tokens map[string]TokenRisk
		if err := json.Unmarshal(raw, &tokens); err == nil {
			return tokens, nil
		}
	}

	f, err := os.Open(filepath.Join(s.dataDir, fileName))
	if err != nil {
		return nil, fmt.Errorf("opening risk sheet for %s: %w", source, err)
	}
	defer f.Close()

	tokens, err := parseRiskSheet(f)
	if err != nil {
		return nil, fmt.Errorf("parsing risk sheet for %s: %w", source, err)
	}

	s.store(cacheKey, tokens)
	return tokens, nil
}

func parseRiskSheet(r io.Reader) (map[string]TokenRisk, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	tokens := make(map[string]TokenRisk)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		symbol := field(row, "Symbol")
		risk, riskErr := strconv.Atoi(field(row, "Risk"))
		riskUSDT, usdtErr := strconv.Atoi(field(row, "Risk_USDT"))
		if riskErr != nil || usdtErr != nil {
			log.Debugf("[marketdata] skipping %s: unparsable risk values", symbol)
			continue
		}

		var warnings []string
		if w := field(row, "WARNINGS"); w != "" {
			warnings = strings.Split(w, ";")
		}

		tokens[symbol] = TokenRisk{
			Symbol:       symbol,
			Price:        field(row, "Price"),
			Volume:       field(row, "Volume"),
			ChainID:      field(row, "CHAIN_ID"),
			TokenAddress: field(row, "TOKEN_ID"),
			Icon:         fmt.Sprintf("https://coinchart.fun/icons/%s.png", strings.ToUpper(symbol)),
			Risk:         risk,
			RiskUSDT:     riskUSDT,
			Change3M:     field(row, "3M_CHANGE"),
			Change1M:     field(row, "1M_CHANGE"),
			Change2W:     field(row, "2W_CHANGE"),
			BubbleSize:   field(row, "BUBBLE_SIZE"),
			Warnings:     warnings,
		}
	}
	return tokens, nil
}

// Signals returns the current trading signals document as-is.
func (s *Service) Signals() (json.RawMessage, error) {
	return s.rawJSONFile("marketdata:signals", filepath.Join(s.dataDir, signalsFile))
}

// SymbolList returns the tradable symbol list document as-is.
func (s *Service) SymbolList() (json.RawMessage, error) {
	return s.rawJSONFile("marketdata:symbols", filepath.Join(s.dataDir, symbolListFile))
}

func (s *Service) rawJSONFile(cacheKey, path string) (json.RawMessage, error) {
	if raw, ok := s.cached(cacheKey); ok {
		return json.RawMessage(raw), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s: invalid JSON document", filepath.Base(path))
	}

	s.storeRaw(cacheKey, data)
	return json.RawMessage(data), nil
}

// CandleData reads the NDJSON candlestick history for one symbol. Lines that
// fail to decode are skipped so one bad line does not hide a whole history.
func (s *Service) CandleData(symbol string) ([]json.RawMessage, error) {
	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, symbol)
	}

	fileName := strings.ToUpper(symbol) + "USDT_data.json"
	data, err := os.ReadFile(filepath.Join(s.candleDir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return []json.RawMessage{}, nil
		}
		return nil, err
	}

	var candles []json.RawMessage
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !json.Valid([]byte(line)) {
			log.Debugf("[marketdata] skipping undecodable candle line for %s", symbol)
			continue
		}
		candles = append(candles, json.RawMessage(line))
	}
	return candles, nil
}

func (s *Service) cached(key string) ([]byte, bool) {
	if s.cacheTTL <= 0 {
		return nil, false
	}
	val, err := cache.Get(key)
	if err != nil {
		if !cache.IsMiss(err) {
			log.Debugf("[marketdata] cache read for %s failed: %v", key, err)
		}
		return nil, false
	}
	return []byte(val), true
}

func (s *Service) store(key string, value interface{}) {
	if s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.storeRaw(key, data)
}

func (s *Service) storeRaw(key string, data []byte) {
	if s.cacheTTL <= 0 {
		return
	}
	if err := cache.Set(key, string(data), s.cacheTTL); err != nil {
		log.Debugf("[marketdata] cache write for %s failed: %v", key, err)
	}
}

// Sources lists the exchanges a risk sheet exists for.
func Sources() []string {
	out := make([]string, 0, len(riskFiles))
	for source := range riskFiles {
		out = append(out, source)
	}
	return out
}
