// Package main seeds a running review service with sample review sections
// through its admin API. It sends the gateway identity headers itself, so
// point it at the service directly, not at the gateway.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// --------------------------------------------------------------------------
// Configuration helpers
// --------------------------------------------------------------------------

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --------------------------------------------------------------------------
// HTTP helpers
// --------------------------------------------------------------------------

var client = &http.Client{Timeout: 10 * time.Second}

func httpPost(url string, body any) (map[string]any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "seed")
	req.Header.Set("X-User-Role", "admin")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return result, nil
}

// --------------------------------------------------------------------------
// Seed data
// --------------------------------------------------------------------------

type seedReview struct {
	UserName   string
	Rating     int
	Text       string
	IsVerified bool
	IsVisible  bool
}

type seedSection struct {
	Heading     string
	Description string
	Provider    string
	ButtonURL   string
	Logo        string
	Order       int
	Reviews     []seedReview
}

var sections = []seedSection{
	{
		Heading:     "What our clients say",
		Description: "Verified reviews from families we help plan their finances.",
		Provider:    "Google",
		ButtonURL:   "https://g.page/r/philanzel/review",
		Logo:        "/images/providers/google.png",
		Order:       1,
		Reviews: []seedReview{
			{"Asha Mehta", 5, "Clear and patient advice on our retirement plan.", true, true},
			{"Rohan Iyer", 4, "Helpful team, quick answers on tax saving funds.", true, true},
			{"Neha Kapoor", 5, "They explained every SIP option without jargon.", false, true},
			{"Vikram Rao", 2, "Took a while to get my first call scheduled.", false, false},
		},
	},
	{
		Heading:     "Trusted on Trustpilot",
		Description: "Independent feedback collected by Trustpilot.",
		Provider:    "Trustpilot",
		ButtonURL:   "https://www.trustpilot.com/evaluate/philanzel.com",
		Logo:        "/images/providers/trustpilot.png",
		Order:       2,
		Reviews: []seedReview{
			{"Priya Nair", 5, "Insurance review saved us a lot every year.", true, true},
			{"Karan Shah", 3, "Good guidance overall, the portal could be faster.", false, true},
		},
	},
}

func main() {
	baseURL := getEnv("REVIEW_SERVICE_URL", "http://localhost:8010")
	adminURL := baseURL + "/api/v1/admin/review-sections"

	log.Printf("seeding review sections into %s", baseURL)

	for _, s := range sections {
		created, err := httpPost(adminURL, map[string]any{
			"heading":           s.Heading,
			"description":       s.Description,
			"reviewProvider":    s.Provider,
			"writeReviewButton": map[string]any{"url": s.ButtonURL},
			"displayOrder":      s.Order,
		})
		if err != nil {
			log.Fatalf("create section %q: %v", s.Heading, err)
		}

		data, _ := created["data"].(map[string]any)
		id, _ := data["id"].(string)
		if id == "" {
			log.Fatalf("create section %q: response has no id", s.Heading)
		}

		var last map[string]any
		for _, r := range s.Reviews {
			last, err = httpPost(adminURL+"/"+id+"/reviews", map[string]any{
				"userName":           r.UserName,
				"reviewProviderLogo": s.Logo,
				"rating":             r.Rating,
				"reviewText":         r.Text,
				"isVerified":         r.IsVerified,
				"isVisible":          r.IsVisible,
			})
			if err != nil {
				log.Fatalf("add review to %q: %v", s.Heading, err)
			}
		}

		if data, ok := last["data"].(map[string]any); ok {
			log.Printf("  %-24s id=%s average=%v count=%v", s.Heading, id, data["averageRating"], data["totalReviewCount"])
		}
	}

	log.Printf("done: %d sections", len(sections))
}
