// Command journal-stats reports on the contents of the weather journal:
// per-source row counts and coverage, plus pairwise temperature agreement
// between data sources over the hours they both observed.
package main

import (
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"gonum.org/v1/gonum/stat"
)

// SourceSummary aggregates one data source's journal rows
type SourceSummary struct {
	Source    string
	Rows      int
	Cities    int
	FirstDate time.Time
	LastDate  time.Time
	Coverage  float64 // fraction of the journal's (city, hour) grid this source filled
}

// PairAgreement compares temperatures two sources reported for the same
// city and hour.
type PairAgreement struct {
	SourceA     string
	SourceB     string
	SharedHours int
	Correlation float64
	Slope       float64
	Intercept   float64
	MeanAbsDiff float64
	RMSDiff     float64
}

// minSharedHours is the smallest overlap worth fitting a regression on.
const minSharedHours = 10

func main() {
	var (
		dbHost    = flag.String("db-host", "localhost", "Database host")
		dbPort    = flag.Int("db-port", 5432, "Database port")
		dbUser    = flag.String("db-user", "forecast", "Database user")
		dbPass    = flag.String("db-pass", "", "Database password")
		dbName    = flag.String("db-name", "forecast", "Database name")
		csvOutput = flag.String("csv", "", "Optional CSV output file for the pairwise agreement table")
	)
	flag.Parse()

	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Weather Journal Statistics\n")
	fmt.Printf("==========================\n\n")

	summaries := fetchSourceSummaries(db)
	if len(summaries) == 0 {
		fmt.Println("The journal is empty. Run the collector first.")
		return
	}
	displaySourceSummaries(summaries)

	pairs := fetchPairAgreements(db, summaries)
	displayPairAgreements(pairs)

	if *csvOutput != "" {
		if err := exportCSV(*csvOutput, pairs); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing CSV: %v\n", err)
		} else {
			fmt.Printf("\nAgreement table exported to: %s\n", *csvOutput)
		}
	}
}

func fetchSourceSummaries(db *sql.DB) []SourceSummary {
	query := `
		SELECT data_source, COUNT(*), COUNT(DISTINCT city_id), MIN(date), MAX(date)
		FROM weather_journal
		GROUP BY data_source
		ORDER BY COUNT(*) DESC
	`

	rows, err := db.Query(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying source summaries: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	var summaries []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.Source, &s.Rows, &s.Cities, &s.FirstDate, &s.LastDate); err != nil {
			fmt.Fprintf(os.Stderr, "Error scanning row: %v\n", err)
			continue
		}
		summaries = append(summaries, s)
	}

	// The grid a source could have filled: every distinct city crossed
	// with every distinct hour anyone observed.
	var gridCities, gridHours int
	err = db.QueryRow(`SELECT COUNT(DISTINCT city_id), COUNT(DISTINCT date) FROM weather_journal`).
		Scan(&gridCities, &gridHours)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying journal grid: %v\n", err)
		os.Exit(1)
	}
	grid := float64(gridCities) * float64(gridHours)
	for i := range summaries {
		if grid > 0 {
			summaries[i].Coverage = float64(summaries[i].Rows) / grid
		}
	}

	return summaries
}

func fetchPairAgreements(db *sql.DB, summaries []SourceSummary) []PairAgreement {
	query := `
		SELECT a.temperature, b.temperature
		FROM weather_journal a
		INNER JOIN weather_journal b
			ON a.city_id = b.city_id AND a.date = b.date
		WHERE a.data_source = $1 AND b.data_source = $2
	`

	var pairs []PairAgreement
	for i := 0; i < len(summaries); i++ {
		for j := i + 1; j < len(summaries); j++ {
			rows, err := db.Query(query, summaries[i].Source, summaries[j].Source)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error querying pair %s/%s: %v\n",
					summaries[i].Source, summaries[j].Source, err)
				continue
			}

			var tempsA, tempsB []float64
			for rows.Next() {
				var a, b float64
				if err := rows.Scan(&a, &b); err != nil {
					continue
				}
				tempsA = append(tempsA, a)
				tempsB = append(tempsB, b)
			}
			rows.Close()

			pairs = append(pairs, fitPair(summaries[i].Source, summaries[j].Source, tempsA, tempsB))
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].SharedHours > pairs[j].SharedHours
	})
	return pairs
}

// fitPair regresses source B's temperatures on source A's over their
// shared hours. A well-agreeing pair has slope near 1, intercept near 0,
// and correlation near 1.
func fitPair(sourceA, sourceB string, tempsA, tempsB []float64) PairAgreement {
	pair := PairAgreement{
		SourceA:     sourceA,
		SourceB:     sourceB,
		SharedHours: len(tempsA),
	}
	if len(tempsA) < minSharedHours {
		return pair
	}

	pair.Correlation = stat.Correlation(tempsA, tempsB, nil)
	pair.Slope, pair.Intercept = regress(tempsA, tempsB)

	var sumAbs, sumSq float64
	for i := range tempsA {
		diff := tempsA[i] - tempsB[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
	}
	n := float64(len(tempsA))
	pair.MeanAbsDiff = sumAbs / n
	pair.RMSDiff = math.Sqrt(sumSq / n)

	return pair
}

func regress(x, y []float64) (slope, intercept float64) {
	intercept, slope = stat.LinearRegression(x, y, nil, false)
	return slope, intercept
}

func displaySourceSummaries(summaries []SourceSummary) {
	fmt.Printf("Per-Source Counts\n")
	fmt.Printf("-----------------\n\n")

	fmt.Printf("%-22s | %10s | %7s | %10s | %10s | %8s\n",
		"Source", "Rows", "Cities", "First", "Last", "Coverage")
	fmt.Printf("-----------------------+------------+---------+------------+------------+---------\n")
	for _, s := range summaries {
		fmt.Printf("%-22s | %10d | %7d | %10s | %10s | %7.1f%%\n",
			s.Source, s.Rows, s.Cities,
			s.FirstDate.Format("2006-01-02"), s.LastDate.Format("2006-01-02"),
			s.Coverage*100)
	}
	fmt.Println()
}

func displayPairAgreements(pairs []PairAgreement) {
	fmt.Printf("Cross-Source Temperature Agreement\n")
	fmt.Printf("----------------------------------\n\n")

	if len(pairs) == 0 {
		fmt.Println("Only one source in the journal; nothing to compare.")
		return
	}

	fmt.Printf("%-22s | %-22s | %8s | %6s | %6s | %8s | %8s\n",
		"Source A", "Source B", "Shared", "r", "Slope", "MAE(°C)", "RMSE(°C)")
	fmt.Printf("-----------------------+------------------------+----------+--------+--------+----------+---------\n")
	for _, p := range pairs {
		if p.SharedHours < minSharedHours {
			fmt.Printf("%-22s | %-22s | %8d | too few shared hours\n", p.SourceA, p.SourceB, p.SharedHours)
			continue
		}
		fmt.Printf("%-22s | %-22s | %8d | %6.3f | %6.3f | %8.2f | %8.2f\n",
			p.SourceA, p.SourceB, p.SharedHours, p.Correlation, p.Slope, p.MeanAbsDiff, p.RMSDiff)
	}

	for _, p := range pairs {
		if p.SharedHours >= minSharedHours && p.Correlation < 0.9 {
			fmt.Printf("\n  ⚠ %s and %s disagree (r=%.3f); one of them may be reporting a different quantity\n",
				p.SourceA, p.SourceB, p.Correlation)
		}
	}
	fmt.Println()
}

func exportCSV(filename string, pairs []PairAgreement) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"SourceA", "SourceB", "SharedHours", "Correlation", "Slope", "Intercept", "MAE_C", "RMSE_C"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range pairs {
		record := []string{
			p.SourceA,
			p.SourceB,
			fmt.Sprintf("%d", p.SharedHours),
			fmt.Sprintf("%.4f", p.Correlation),
			fmt.Sprintf("%.4f", p.Slope),
			fmt.Sprintf("%.4f", p.Intercept),
			fmt.Sprintf("%.2f", p.MeanAbsDiff),
			fmt.Sprintf("%.2f", p.RMSDiff),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}
