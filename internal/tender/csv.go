package tender

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

const (
	titleColumn = "Contract Title"
	utf8BOM     = "\ufeff"
)

// valueCleaner drops currency symbols (including the mojibake "Â" that
// spreadsheet exports leave in front of "£") and thousands separators.
var valueCleaner = strings.NewReplacer("Â", "", "£", "", ",", "")

// LoadContractsCSV reads tender contracts from the delimited export at path.
func LoadContractsCSV(path string) (*Contracts, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	contracts, err := ParseContractsCSV(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return contracts, nil
}

// ParseContractsCSV decodes a header-prefixed CSV stream into contracts.
// Records without a title are skipped, empty lines are ignored and values
// that cannot be parsed are treated as unstated.
func ParseContractsCSV(r io.Reader) (*Contracts, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Contracts{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	for i, column := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(column, utf8BOM))
	}

	contracts := &Contracts{}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		record := make(map[string]string, len(header))
		for i, column := range header {
			if i < len(row) {
				record[column] = strings.TrimSpace(row[i])
			}
		}

		if record[titleColumn] == "" {
			continue
		}

		contract, err := decodeContract(record)
		if err != nil {
			return nil, err
		}

		contracts.Items = append(contracts.Items, contract)
	}

	return contracts, nil
}

func decodeContract(record map[string]string) (*Contract, error) {
	var contract Contract

	cfg := &mapstructure.DecoderConfig{
		DecodeHook: valueHook,
		Result:     &contract,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(record); err != nil {
		return nil, fmt.Errorf("decode contract %q: %w", record[titleColumn], err)
	}

	contract.NoticeURL = normalizeURL(contract.NoticeURL)

	return &contract, nil
}

func valueHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Float64 {
		return data, nil
	}

	cleaned := strings.TrimSpace(valueCleaner.Replace(data.(string)))
	if cleaned == "" {
		return 0.0, nil
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 {
		return 0.0, nil
	}

	return value, nil
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "http") {
		return raw
	}
	return "https://" + raw
}
