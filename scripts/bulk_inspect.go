package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// CSVRow is one vehicle to inspect: vin,make,model,year,mileage,images
// where images is a ';' separated list of local paths or URLs.
type CSVRow struct {
	Line    int
	VIN     string
	Make    string
	Model   string
	Year    string
	Mileage string
	Images  []string
}

type inspectResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    struct {
		InspectionID  string `json:"inspection_id"`
		ImageCount    int    `json:"image_count"`
		TotalDefects  int    `json:"total_defects_detected"`
		UniqueDefects int    `json:"unique_defect_types"`
		Verdict       string `json:"verdict"`
		ReportURL     string `json:"report_url"`
	} `json:"data"`
}

const defaultServiceURL = "http://localhost:8080"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run bulk_inspect.go <path-to-csv> [service-url] [report-dir]")
		fmt.Println("Example: go run bulk_inspect.go fleet.csv http://localhost:8080 ./reports")
		os.Exit(1)
	}

	csvPath := os.Args[1]
	serviceURL := defaultServiceURL
	if len(os.Args) > 2 {
		serviceURL = strings.TrimRight(os.Args[2], "/")
	}
	reportDir := ""
	if len(os.Args) > 3 {
		reportDir = os.Args[3]
		if err := os.MkdirAll(reportDir, 0o755); err != nil {
			fmt.Printf("Error creating report dir: %v\n", err)
			os.Exit(1)
		}
	}

	rows, err := readCSV(csvPath)
	if err != nil {
		fmt.Printf("Error reading CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Read %d vehicles from %s\n", len(rows), csvPath)

	client := &http.Client{Timeout: 2 * time.Minute}
	verdicts := map[string]int{}
	failed := 0

	for _, row := range rows {
		resp, size, err := inspect(client, serviceURL, row)
		if err != nil {
			failed++
			fmt.Printf("  line %d (%s): FAILED: %v\n", row.Line, row.VIN, err)
			continue
		}
		verdicts[resp.Data.Verdict]++
		fmt.Printf("  line %d (%s): %-9s images=%d unique=%d total=%d uploaded=%s\n",
			row.Line, row.VIN, resp.Data.Verdict, resp.Data.ImageCount,
			resp.Data.UniqueDefects, resp.Data.TotalDefects, humanize.Bytes(uint64(size)))

		if reportDir != "" {
			name := fmt.Sprintf("%s_%s.pdf", safeName(row.VIN), resp.Data.InspectionID)
			if err := downloadReport(client, serviceURL, filepath.Join(reportDir, name)); err != nil {
				fmt.Printf("    warning: failed to save report: %v\n", err)
			}
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("  Vehicles:  %d\n", len(rows))
	fmt.Printf("  PASS:      %d\n", verdicts["PASS"])
	fmt.Printf("  ATTENTION: %d\n", verdicts["ATTENTION"])
	fmt.Printf("  FAIL:      %d\n", verdicts["FAIL"])
	fmt.Printf("  Failed:    %d\n", failed)

	if failed > 0 {
		os.Exit(2)
	}
}

func readCSV(path string) ([]CSVRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []CSVRow
	for i, rec := range records {
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "vin") {
			continue
		}
		if len(rec) < 6 {
			return nil, fmt.Errorf("line %d: expected 6 columns, got %d", i+1, len(rec))
		}
		var images []string
		for _, img := range strings.Split(rec[5], ";") {
			if img = strings.TrimSpace(img); img != "" {
				images = append(images, img)
			}
		}
		rows = append(rows, CSVRow{
			Line:    i + 1,
			VIN:     strings.TrimSpace(rec[0]),
			Make:    strings.TrimSpace(rec[1]),
			Model:   strings.TrimSpace(rec[2]),
			Year:    strings.TrimSpace(rec[3]),
			Mileage: strings.TrimSpace(rec[4]),
			Images:  images,
		})
	}
	return rows, nil
}

func inspect(client *http.Client, serviceURL string, row CSVRow) (*inspectResponse, int, error) {
	if len(row.Images) == 0 {
		return nil, 0, fmt.Errorf("no images listed")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"vin":     row.VIN,
		"make":    row.Make,
		"model":   row.Model,
		"year":    row.Year,
		"mileage": row.Mileage,
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, 0, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}

	for i, src := range row.Images {
		data, err := loadImage(client, src)
		if err != nil {
			return nil, 0, fmt.Errorf("image %d: %w", i+1, err)
		}

		contentType := http.DetectContentType(data)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, filepath.Base(src)))
		h.Set("Content-Type", contentType)

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create form file: %w", err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, 0, fmt.Errorf("failed to write image data: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	size := body.Len()

	req, err := http.NewRequest(http.MethodPost, serviceURL+"/api/v1/inspect", &body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var out inspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, out.Error)
	}
	return &out, size, nil
}

// loadImage reads a local file or downloads an http(s) URL.
func loadImage(client *http.Client, src string) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.ReadFile(src)
	}

	resp, err := client.Get(src)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d when downloading image", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func downloadReport(client *http.Client, serviceURL, dst string) error {
	resp, err := client.Get(serviceURL + "/api/v1/report")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func safeName(s string) string {
	if s == "" {
		return "vehicle"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
