package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const postingPage = `<!DOCTYPE html>
<html>
<head>
<title>Backend Engineer at Nimbus</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "JobPosting",
  "title": "Backend Engineer",
  "description": "<p>Build Go services on Kubernetes.</p>",
  "validThrough": "2026-10-01",
  "employmentType": "FULL_TIME",
  "industry": "Cloud Infrastructure",
  "hiringOrganization": {"name": "Nimbus"},
  "jobLocation": {"address": {"addressLocality": "Berlin", "addressRegion": "BE"}},
  "baseSalary": {"value": {"minValue": 70000, "maxValue": 90000}}
}
</script>
</head>
<body>irrelevant</body>
</html>`

const fallbackPage = `<!DOCTYPE html>
<html>
<head>
<title>Data Engineer | Acme Careers</title>
<meta name="description" content="Own the warehouse pipelines.">
<meta property="og:site_name" content="Acme">
</head>
<body></body>
</html>`

func TestFromURLParsesJSONLD(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(postingPage))
	}))
	defer srv.Close()

	imp := NewImporter(srv.Client(), nil)
	res, err := imp.FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", res.Status)
	}

	job := res.Job
	if job.Title != "Backend Engineer" {
		t.Errorf("title = %q", job.Title)
	}
	if job.Company != "Nimbus" {
		t.Errorf("company = %q", job.Company)
	}
	if job.Location != "Berlin, BE" {
		t.Errorf("location = %q", job.Location)
	}
	if job.SalaryRange != "70000-90000" {
		t.Errorf("salary = %q", job.SalaryRange)
	}
	if job.Description != "Build Go services on Kubernetes." {
		t.Errorf("description = %q", job.Description)
	}
	if job.Deadline == nil {
		t.Fatal("deadline not parsed")
	}
	want := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	if !job.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", job.Deadline, want)
	}
	if job.URL != srv.URL {
		t.Errorf("url = %q", job.URL)
	}
}

func TestFromURLFallsBackToMetaTags(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fallbackPage))
	}))
	defer srv.Close()

	imp := NewImporter(srv.Client(), nil)
	res, err := imp.FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %q, want success", res.Status)
	}
	if res.Job.Title != "Data Engineer | Acme Careers" {
		t.Errorf("title = %q", res.Job.Title)
	}
	if res.Job.Company != "Acme" {
		t.Errorf("company = %q", res.Job.Company)
	}
	if res.Job.Description != "Own the warehouse pipelines." {
		t.Errorf("description = %q", res.Job.Description)
	}
}

func TestFromURLUnparseablePageReturnsFailed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>no useful data</body></html>`))
	}))
	defer srv.Close()

	imp := NewImporter(srv.Client(), nil)
	res, err := imp.FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if res.Job != nil {
		t.Errorf("job = %+v, want nil", res.Job)
	}
}

func TestFromURLServerErrorReturnsFailed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	imp := NewImporter(srv.Client(), nil)
	res, err := imp.FromURL(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
}

func TestFromURLInvalidURL(t *testing.T) {
	t.Parallel()

	imp := NewImporter(nil, nil)
	if _, err := imp.FromURL(context.Background(), "not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
