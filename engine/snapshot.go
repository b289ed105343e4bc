/*
snapshot.go - Version records, statistics and checksums

PURPOSE:
  Turns a validated month sheet into the immutable VersionRecord stored in
  the append-only archive. The checksum is a pure function of the ordered
  (apartmentId, totalDatorat, paid) tuples: identical tables hash the same,
  and flipping a single paid flag changes the hash.

CHECKSUM STRENGTH:
  The rolling 32-bit hash detects accidental drift (truncated imports,
  hand-edited backups), not tampering. Swap in a cryptographic digest if the
  archive ever needs integrity guarantees beyond that.
*/
package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComputeChecksum hashes the ordered row tuples. Rows are hashed in slice
// order; publish freezes them in display order so the function stays pure.
func ComputeChecksum(rows []BalanceRow) string {
	if len(rows) == 0 {
		return "EMPTY"
	}

	var b strings.Builder
	b.WriteByte('[')
	for i := range rows {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"apartmentId":%q,"totalDatorat":%s,"paid":%t}`,
			rows[i].ApartmentID, rows[i].TotalDatorat().StringFixed(2), rows[i].Paid)
	}
	b.WriteByte(']')

	var hash int32
	for _, c := range b.String() {
		hash = (hash << 5) - hash + int32(c)
	}
	if hash < 0 {
		hash = -hash
	}
	hex := strings.ToUpper(strconv.FormatInt(int64(hash), 16))
	if len(hex) > 8 {
		hex = hex[:8]
	}
	return hex
}

// ComputeStatistics collects the publish-time counters stored alongside the
// frozen table.
func ComputeStatistics(rows []BalanceRow) Statistics {
	stats := Statistics{
		TotalApartments: len(rows),
		TotalIncasat:    decimal.Zero,
		TotalRestante:   decimal.Zero,
	}
	for i := range rows {
		if rows[i].Paid {
			stats.ApartmentePlatite++
			stats.TotalIncasat = stats.TotalIncasat.Add(rows[i].TotalDatorat())
		} else {
			stats.ApartamenteRestante++
			stats.TotalRestante = stats.TotalRestante.Add(rows[i].TotalDatorat())
		}
	}
	return stats
}

// VersionLabel builds the human-facing version tag, e.g. "v2025.3.K8F2A1".
func VersionLabel(at time.Time) string {
	hash := strings.ToUpper(strconv.FormatInt(at.UnixMilli(), 36))
	if len(hash) > 6 {
		hash = hash[len(hash)-6:]
	}
	return fmt.Sprintf("v%d.%d.%s", at.Year(), int(at.Month()), hash)
}

// BuildVersionRecord freezes a sheet into its archive form. The sheet must
// already carry its published status; the record embeds a copy.
func BuildVersionRecord(sheet *MonthSheet, structure Structure, publishedBy string, at time.Time) *VersionRecord {
	if publishedBy == "" {
		publishedBy = "Administrator"
	}
	return &VersionRecord{
		ID:         uuid.NewString(),
		MonthKey:   sheet.MonthKey,
		Month:      sheet.Month,
		Timestamp:  at,
		Status:     MonthPublished,
		Sheet:      *sheet,
		Statistics: ComputeStatistics(sheet.Rows),
		Checksum:   ComputeChecksum(sheet.Rows),
		Meta: VersionMeta{
			AssociationID:   structure.AssociationID,
			AssociationName: structure.AssociationName,
			PublishedBy:     publishedBy,
			Version:         VersionLabel(at),
		},
	}
}

// VerifyChecksum recomputes the checksum of a loaded record. A mismatch is
// reported as a non-fatal IntegrityWarning; the persisted data is still
// usable.
func VerifyChecksum(record *VersionRecord) *IntegrityWarning {
	computed := ComputeChecksum(record.Sheet.Rows)
	if computed == record.Checksum {
		return nil
	}
	return &IntegrityWarning{
		MonthKey: record.MonthKey,
		Stored:   record.Checksum,
		Computed: computed,
	}
}
