package vcf2bgen

import (
	"context"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PipelineState tracks a conversion run through its phases. Aborted is
// terminal and reachable from any non-terminal state on the first fatal
// error.
type PipelineState uint8

const (
	StateIdle PipelineState = iota
	StateHeaderParsed
	StateStreaming
	StateFinalizing
	StateDone
	StateAborted
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateHeaderParsed:
		return "HeaderParsed"
	case StateStreaming:
		return "Streaming"
	case StateFinalizing:
		return "Finalizing"
	case StateDone:
		return "Done"
	case StateAborted:
		return "Aborted"
	default:
		return "Illegal selection"
	}
}

// Pipeline orchestrates one conversion: VCF reader → probability encoder →
// BGEN writer, with the index builder observing byte offsets as they are
// assigned. One VariantRecord is in flight at a time unless encoding is
// spread over workers, in which case encoded blocks are re-joined in input
// order before the writer sees them.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger

	state    PipelineState
	nRead    int64
	nWritten int64
}

// NewPipeline validates cfg and returns an idle pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:    cfg,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger installs a logger for progress and abort reporting.
func (p *Pipeline) SetLogger(l *zap.Logger) {
	p.logger = l
}

// State reports the pipeline's current phase.
func (p *Pipeline) State() PipelineState {
	return p.state
}

// NWritten is the number of variant blocks written so far.
func (p *Pipeline) NWritten() int64 {
	return p.nWritten
}

// Run executes the conversion to completion. On the first fatal error the
// pipeline transitions to Aborted and the partial output and index files are
// removed: a truncated BGEN file is not valid and must not look usable.
// Cancellation is honored between variants, never mid-record.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.state != StateIdle {
		return errRunTwice
	}

	err := p.run(ctx)
	if err != nil {
		p.state = StateAborted
		p.logger.Error("conversion aborted; removing partial output",
			zap.String("output", p.cfg.OutputPath),
			zap.String("index", p.cfg.IndexPath),
			zap.Error(err))
		os.Remove(p.cfg.OutputPath)
		os.Remove(p.cfg.IndexPath)
		return err
	}

	p.state = StateDone
	return nil
}

func (p *Pipeline) run(ctx context.Context) error {
	encoder, err := NewEncoder(p.cfg.Bits, p.cfg.PloidyPolicy)
	if err != nil {
		return err
	}

	reader, err := OpenVCF(p.cfg.InputPath)
	if err != nil {
		return err
	}
	defer reader.Close()
	p.state = StateHeaderParsed
	p.logger.Info("parsed VCF header",
		zap.Int("samples", len(reader.Samples())),
		zap.String("input", p.cfg.InputPath))

	writer, outFile, err := CreateBgen(p.cfg.OutputPath, reader.Samples(), p.cfg.Compression)
	if err != nil {
		return err
	}
	defer outFile.Close()

	index, err := NewVariantIndexBuilder(p.cfg.IndexPath, p.cfg.OutputPath)
	if err != nil {
		return err
	}

	p.state = StateStreaming
	src := &recordSource{pipeline: p, reader: reader}

	if p.cfg.EncodeWorkers > 1 {
		err = p.streamParallel(ctx, src, encoder, writer, index)
	} else {
		err = p.streamSequential(ctx, src, encoder, writer, index)
	}
	if err != nil {
		index.Abort()
		return err
	}

	p.state = StateFinalizing
	if err := writer.Finalize(); err != nil {
		index.Abort()
		return err
	}
	if err := outFile.Close(); err != nil {
		index.Abort()
		return err
	}
	if err := index.Close(); err != nil {
		return err
	}

	p.logger.Info("conversion finished",
		zap.Int64("variants", p.nWritten),
		zap.String("output", p.cfg.OutputPath),
		zap.String("index", p.cfg.IndexPath))

	return nil
}

func (p *Pipeline) streamSequential(ctx context.Context, src *recordSource, encoder *Encoder, writer *BgenWriter, index *VariantIndexBuilder) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := src.next()
		if err != nil {
			return err
		}
		if rec == nil {
			return nil
		}

		block, err := encoder.Encode(rec)
		if err != nil {
			return err
		}

		if err := p.writeAndIndex(writer, index, rec, block); err != nil {
			return err
		}
	}
}

type encodeResult struct {
	rec   *VariantRecord
	block *EncodedProbabilityBlock
	err   error
}

// streamParallel fans records out to an encode pool and re-joins the results
// strictly in input order through a bounded channel of per-record slots, so
// the writer and index observe the same single global order as the
// sequential path.
func (p *Pipeline) streamParallel(ctx context.Context, src *recordSource, encoder *Encoder, writer *BgenWriter, index *VariantIndexBuilder) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	type encodeJob struct {
		rec *VariantRecord
		res chan encodeResult
	}

	jobs := make(chan encodeJob)
	ordered := make(chan chan encodeResult, p.cfg.EncodeWorkers*2)

	g.Go(func() error {
		defer close(jobs)
		defer close(ordered)
		for {
			rec, err := src.next()
			if err != nil {
				return err
			}
			if rec == nil {
				return nil
			}

			job := encodeJob{rec: rec, res: make(chan encodeResult, 1)}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case ordered <- job.res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	for i := 0; i < p.cfg.EncodeWorkers; i++ {
		g.Go(func() error {
			for job := range jobs {
				block, err := encoder.Encode(job.rec)
				job.res <- encodeResult{rec: job.rec, block: block, err: err}
				if err != nil {
					// Stop the pool; the writer surfaces this error when
					// it reaches the record's slot.
					return err
				}
			}
			return nil
		})
	}

	var writeErr error
WriteLoop:
	for res := range ordered {
		var r encodeResult
		select {
		case r = <-res:
		case <-ctx.Done():
			writeErr = ctx.Err()
			break WriteLoop
		}

		if r.err != nil {
			writeErr = r.err
			break
		}
		if err := p.writeAndIndex(writer, index, r.rec, r.block); err != nil {
			writeErr = err
			break
		}
	}

	if writeErr != nil {
		// Unblock the reader and workers before waiting for them.
		cancel()
	}
	if groupErr := g.Wait(); writeErr == nil {
		writeErr = groupErr
	}

	return writeErr
}

func (p *Pipeline) writeAndIndex(writer *BgenWriter, index *VariantIndexBuilder, rec *VariantRecord, block *EncodedProbabilityBlock) error {
	entry, err := writer.WriteVariant(rec, block)
	if err != nil {
		return err
	}

	if err := index.Add(entry); err != nil {
		return err
	}

	p.nWritten++
	if p.cfg.ProgressEvery > 0 && p.nWritten%int64(p.cfg.ProgressEvery) == 0 {
		p.logger.Info("converted variants",
			zap.Int64("written", p.nWritten),
			zap.Int64("read", p.nRead))
	}

	return nil
}

// recordSource yields VariantRecords one at a time, expanding multiallelic
// sites into buffered biallelic splits when that mode is on.
type recordSource struct {
	pipeline *Pipeline
	reader   *VCFReader
	pending  []*VariantRecord
}

func (s *recordSource) next() (*VariantRecord, error) {
	if len(s.pending) > 0 {
		rec := s.pending[0]
		s.pending = s.pending[1:]
		return rec, nil
	}

	rec, err := s.reader.Next()
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	s.pipeline.nRead++

	if !s.pipeline.cfg.SplitMultiallelic || len(rec.Alts) == 1 {
		return rec, nil
	}

	splits, err := SplitMultiallelic(rec)
	if err != nil {
		return nil, err
	}
	s.pending = splits[1:]

	return splits[0], nil
}
