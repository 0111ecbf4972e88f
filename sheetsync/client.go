package sheetsync

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Scopes the sync needs: row reads plus file metadata for the change marker.
var GoogleScopes = []string{
	sheets.SpreadsheetsReadonlyScope,
	drive.DriveMetadataReadonlyScope,
}

// LoadCredentials reads a Google credentials JSON file and checks that a
// token can actually be minted from it. Absence or invalidity is reported as
// ok=false, not an error: refresh flows are the credential file owner's
// responsibility.
func LoadCredentials(ctx context.Context, path string, scopes ...string) (option.ClientOption, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, false
	}
	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, false
	}
	return option.WithCredentials(creds), true
}

// GoogleSource reads the spreadsheet through the Sheets API and its change
// marker through the Drive API.
type GoogleSource struct {
	sheets *sheets.Service
	drive  *drive.Service
}

func NewGoogleSource(ctx context.Context, opts ...option.ClientOption) (*GoogleSource, error) {
	sheetsService, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	driveService, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GoogleSource{sheets: sheetsService, drive: driveService}, nil
}

// ModifiedTime returns the document's opaque last-modified marker.
func (g *GoogleSource) ModifiedTime(ctx context.Context, spreadsheetID string) (string, error) {
	file, err := g.drive.Files.Get(spreadsheetID).
		Fields("modifiedTime").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return file.ModifiedTime, nil
}

// ReadPage fetches one fixed-size row window of the four source columns.
func (g *GoogleSource) ReadPage(ctx context.Context, spreadsheetID string, sheetName string, first int64, count int64) ([][]interface{}, error) {
	readRange := fmt.Sprintf("%s!A%d:D%d", sheetName, first, first+count-1)
	resp, err := g.sheets.Spreadsheets.Values.Get(spreadsheetID, readRange).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}
