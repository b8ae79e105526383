package fixture

import (
	"context"
	"slices"

	"github.com/rs/zerolog"
)

// changeDetector remembers each table's checksum as of the end of the last
// successful load. It belongs to one Loader and is not safe for concurrent use.
type changeDetector struct {
	dialect   Dialect
	checksums map[string]string
	logger    *zerolog.Logger
}

func newChangeDetector(d Dialect, logger *zerolog.Logger) *changeDetector {
	return &changeDetector{dialect: d, checksums: map[string]string{}, logger: logger}
}

// changed returns the files whose tables must be reloaded, in their
// original order. A table is skipped only when its current checksum equals
// the stored one; every failure to decide counts as changed unless the
// connection itself is unusable.
func (c *changeDetector) changed(ctx context.Context, q Querier, files []*File) ([]*File, error) {
	if len(c.checksums) == 0 {
		return files, nil
	}

	tables, err := c.dialect.TableNames(ctx, q)
	if err != nil {
		if connUnusable(err) {
			return nil, err
		}
		c.logger.Warn().Err(err).Msg("listing tables failed; reloading every fixture")
		return files, nil
	}

	out := make([]*File, 0, len(files))
	for _, f := range files {
		stored, ok := c.checksums[f.Table]
		if !ok || stored == "" || !slices.Contains(tables, f.Table) {
			out = append(out, f)
			continue
		}
		current, err := c.dialect.TableChecksum(ctx, q, f.Table)
		if err != nil {
			if connUnusable(err) {
				return nil, err
			}
			c.logger.Warn().Err(err).Str("table", f.Table).Msg("checksum failed; reloading table")
			out = append(out, f)
			continue
		}
		if current != stored {
			out = append(out, f)
			continue
		}
		c.logger.Debug().Str("table", f.Table).Msg("skipping unchanged table")
	}
	return out, nil
}

// stale splits skipped files into those whose table no longer matches its
// stored checksum and those that still do. It runs inside the load
// transaction, after other tables were reloaded. A checksum that cannot be
// computed counts as stale.
func (c *changeDetector) stale(ctx context.Context, q Querier, skipped []*File) (stale, fresh []*File, err error) {
	for _, f := range skipped {
		current, err := c.dialect.TableChecksum(ctx, q, f.Table)
		switch {
		case err != nil && connUnusable(err):
			return nil, nil, err
		case err != nil, current != c.checksums[f.Table]:
			stale = append(stale, f)
		default:
			fresh = append(fresh, f)
		}
	}
	return stale, fresh, nil
}

// record stores the post-load checksum of every table in files. A table
// whose checksum cannot be computed is forgotten so the next load reloads it.
func (c *changeDetector) record(ctx context.Context, q Querier, files []*File) {
	for _, f := range files {
		sum, err := c.dialect.TableChecksum(ctx, q, f.Table)
		if err != nil {
			c.logger.Warn().Err(err).Str("table", f.Table).Msg("checksum failed after load")
			delete(c.checksums, f.Table)
			continue
		}
		c.checksums[f.Table] = sum
	}
}

// forget drops every stored checksum.
func (c *changeDetector) forget() {
	clear(c.checksums)
}
