package optimize

import (
	"context"
	"fmt"

	"github.com/wudi/pdfmerge/ir/raw"
)

type Config struct {
	PruneUnreachable                bool
	CombineIdenticalIndirectObjects bool
	CombineDuplicateStreams         bool
	CombineDuplicateDirectObjects   bool
	CompressStreams                 bool
	CompressionLevel                int // zlib level, 0 means default
}

// DefaultConfig prunes unreachable objects and merges identical indirect
// objects, streams included.
func DefaultConfig() Config {
	return Config{
		PruneUnreachable:                true,
		CombineIdenticalIndirectObjects: true,
	}
}

type Optimizer struct {
	config Config
}

func New(config Config) *Optimizer {
	return &Optimizer{config: config}
}

// Optimize rewrites doc in place. Pinned objects are never removed, never
// merged into another object and never have their direct values hoisted,
// so the references that name them stay valid.
func (o *Optimizer) Optimize(ctx context.Context, doc *raw.Document, pinned ...raw.ObjectRef) error {
	if doc == nil {
		return nil
	}
	keep := make(map[raw.ObjectRef]bool, len(pinned))
	for _, ref := range pinned {
		keep[ref] = true
	}

	if o.config.PruneUnreachable {
		if err := o.pruneUnreachable(ctx, doc, keep); err != nil {
			return fmt.Errorf("failed to prune unreachable objects: %w", err)
		}
	}

	if o.config.CombineIdenticalIndirectObjects {
		if err := o.combineObjects(ctx, doc, keep, true, true); err != nil {
			return fmt.Errorf("failed to combine identical indirect objects: %w", err)
		}
	} else if o.config.CombineDuplicateStreams {
		if err := o.combineObjects(ctx, doc, keep, true, false); err != nil {
			return fmt.Errorf("failed to combine duplicate streams: %w", err)
		}
	}

	if o.config.CombineDuplicateDirectObjects {
		if err := o.combineDuplicateDirectObjects(ctx, doc, keep); err != nil {
			return fmt.Errorf("failed to combine duplicate direct objects: %w", err)
		}
	}

	if o.config.CompressStreams {
		if err := o.compressStreams(ctx, doc); err != nil {
			return fmt.Errorf("failed to compress streams: %w", err)
		}
	}

	return nil
}
