package model

import (
	"strconv"
)

// LocationResponse is the public shape of one OA location.
type LocationResponse struct {
	URL               string `json:"url"`
	URLForPDF         string `json:"url_for_pdf"`
	URLForLandingPage string `json:"url_for_landing_page"`
	Evidence          string `json:"evidence"`
	License           string `json:"license"`
	Version           string `json:"version"`
	HostType          string `json:"host_type"`
	OAColor           string `json:"oa_color"`
	IsBest            bool   `json:"is_best"`
	PMHID             string `json:"pmh_id"`
	RepositoryID      string `json:"repository_id"`
	Updated           string `json:"updated"`
}

// NewLocationResponse converts a consolidated location to its public shape.
func NewLocationResponse(l Location) LocationResponse {
	resp := LocationResponse{
		URL:               l.BestURL(),
		URLForPDF:         l.PDFURL,
		URLForLandingPage: l.MetadataURL,
		Evidence:          l.Evidence,
		License:           l.License,
		Version:           string(l.Version),
		HostType:          string(l.HostType()),
		OAColor:           string(l.OAColor()),
		IsBest:            l.IsBest,
		PMHID:             l.RecordID,
	}
	if resp.HostType == string(HostRepository) {
		resp.RepositoryID = l.RepositoryID
	}
	if !l.Updated.IsZero() {
		resp.Updated = l.Updated.UTC().Format("2006-01-02T15:04:05.000000")
	}
	return resp
}

// Response is the canonical public answer for a work. It is persisted and
// compared between passes by the change detector.
type Response struct {
	DOI                        string             `json:"doi"`
	DOIURL                     string             `json:"doi_url"`
	IsOA                       bool               `json:"is_oa"`
	BestOALocation             *LocationResponse  `json:"best_oa_location"`
	OALocations                []LocationResponse `json:"oa_locations"`
	DataStandard               int                `json:"data_standard"`
	Title                      string             `json:"title"`
	Year                       *int               `json:"year"`
	JournalIsOA                bool               `json:"journal_is_oa"`
	JournalIsInDOAJ            bool               `json:"journal_is_in_doaj"`
	JournalISSNs               string             `json:"journal_issns"`
	JournalName                string             `json:"journal_name"`
	Publisher                  string             `json:"publisher"`
	PublishedDate              string             `json:"published_date"`
	Updated                    string             `json:"updated"`
	LastChangedDate            string             `json:"last_changed_date,omitempty"`
	Genre                      string             `json:"genre"`
	Authors                    []any              `json:"z_authors"`
	ReportedNoncompliantCopies []string           `json:"x_reported_noncompliant_copies"`
	Error                      string             `json:"x_error,omitempty"`
}

// LegacyResponse is the flat v1 answer kept for older API clients.
type LegacyResponse struct {
	AlgorithmVersion           int      `json:"algorithm_version"`
	DOIResolver                string   `json:"doi_resolver"`
	Evidence                   string   `json:"evidence"`
	FreeFulltextURL            string   `json:"free_fulltext_url"`
	IsBOAILicense              bool     `json:"is_boai_license"`
	IsFreeToRead               bool     `json:"is_free_to_read"`
	IsSubscriptionJournal      bool     `json:"is_subscription_journal"`
	License                    string   `json:"license"`
	OAColor                    string   `json:"oa_color"`
	ReportedNoncompliantCopies []string `json:"reported_noncompliant_copies"`
	DOI                        string   `json:"doi,omitempty"`
	Title                      string   `json:"title,omitempty"`
	URL                        string   `json:"url,omitempty"`
	Error                      string   `json:"error,omitempty"`
}

// FlatRowHeader is the column order of FlatRow.Values.
var FlatRowHeader = []string{
	"doi",
	"doi_url",
	"is_oa",
	"genre",
	"journal_name",
	"journal_issns",
	"journal_is_oa",
	"publisher",
	"published_date",
	"data_standard",
	"best_oa_url",
	"best_oa_url_is_pdf",
	"best_oa_evidence",
	"best_oa_host",
	"best_oa_version",
	"best_oa_license",
}

// FlatRow is the spreadsheet-friendly projection of a Response.
type FlatRow struct {
	DOI            string
	DOIURL         string
	IsOA           bool
	Genre          string
	JournalName    string
	JournalISSNs   string
	JournalIsOA    bool
	Publisher      string
	PublishedDate  string
	DataStandard   int
	BestOAURL      string
	BestOAURLIsPDF bool
	BestOAEvidence string
	BestOAHost     string
	BestOAVersion  string
	BestOALicense  string
}

// Flat projects the response onto a FlatRow.
func (r *Response) Flat() FlatRow {
	if r == nil {
		return FlatRow{}
	}
	row := FlatRow{
		DOI:           r.DOI,
		DOIURL:        r.DOIURL,
		IsOA:          r.IsOA,
		Genre:         r.Genre,
		JournalName:   r.JournalName,
		JournalISSNs:  r.JournalISSNs,
		JournalIsOA:   r.JournalIsOA,
		Publisher:     r.Publisher,
		PublishedDate: r.PublishedDate,
		DataStandard:  r.DataStandard,
	}
	if best := r.BestOALocation; best != nil {
		row.BestOAURL = best.URL
		row.BestOAURLIsPDF = best.URLForPDF != ""
		row.BestOAEvidence = best.Evidence
		row.BestOAHost = best.HostType
		row.BestOAVersion = best.Version
		row.BestOALicense = best.License
	}
	return row
}

// Values returns the row in FlatRowHeader order.
func (f FlatRow) Values() []string {
	return []string{
		f.DOI,
		f.DOIURL,
		strconv.FormatBool(f.IsOA),
		f.Genre,
		f.JournalName,
		f.JournalISSNs,
		strconv.FormatBool(f.JournalIsOA),
		f.Publisher,
		f.PublishedDate,
		strconv.Itoa(f.DataStandard),
		f.BestOAURL,
		strconv.FormatBool(f.BestOAURLIsPDF),
		f.BestOAEvidence,
		f.BestOAHost,
		f.BestOAVersion,
		f.BestOALicense,
	}
}
