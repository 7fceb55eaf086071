package experiment

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/nxstacker/internal/projection"
	"github.com/example/nxstacker/internal/stack"
)

// TransitionNotFoundError reports an elemental map absent from every
// located projection file.
type TransitionNotFoundError struct {
	Transition string
}

func (e *TransitionNotFoundError) Error() string {
	return fmt.Sprintf("the elemental map of %q does not exist in any projection", e.Transition)
}

var transitionPattern = regexp.MustCompile(`^[A-Z][a-z]?-\w+$`)

// ParseTransitions splits a comma-separated list of <Element>-<Edge>
// line groups, e.g. "Fe-Ka,Ca-Ka".
func ParseTransitions(spec string) ([]string, error) {
	var out []string
	for _, tok := range strings.Split(spec, ",") {
		t := strings.TrimSpace(tok)
		if t == "" {
			continue
		}
		if !transitionPattern.MatchString(t) {
			return nil, fmt.Errorf("malformed transition %q, expected <Element>-<Edge>", t)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no transition given")
	}
	return out, nil
}

// XRF stacks windowed fluorescence maps into one NXtomo file per
// transition.
type XRF struct {
	Params
	Transitions []string

	reader *rawReader
	load   *loaders
}

// Run executes the whole pipeline and reports what was written. A
// projection missing one transition is skipped for that transition
// only; a transition missing everywhere aborts the run.
func (e *XRF) Run(ctx context.Context) (*Summary, error) {
	log := e.logger()
	if e.reader == nil {
		e.reader = defaultRawReader()
	}
	if e.load == nil {
		e.load = defaultLoaders()
	}
	if len(e.Transitions) == 0 {
		return nil, fmt.Errorf("no transition given")
	}

	recs, err := e.locateRecords(ctx, []*projection.Schema{projection.XRFWindowSchema})
	if err != nil {
		return nil, err
	}
	located := len(recs)

	if err := e.gatherAngles(recs, e.reader); err != nil {
		return nil, err
	}
	kept, skipped := e.filterByAngle(recs)
	if len(kept) == 0 {
		return nil, fmt.Errorf("every projection was excluded by the angle filter")
	}

	meta := rangeMetadata(kept)
	meta.DetectorDistance = e.detectorDistance(kept, e.reader)

	assemblies := make([]stack.Assembly, 0, len(e.Transitions))
	for _, tr := range e.Transitions {
		frames, err := e.loadTransition(ctx, tr, kept)
		if err != nil {
			return nil, err
		}
		skipped += len(kept) - len(frames)
		if len(frames) == 0 {
			return nil, &TransitionNotFoundError{Transition: tr}
		}
		assemblies = append(assemblies, stack.Assembly{
			Role:   stack.Role(tr),
			Frames: frames,
		})
	}

	w := e.stackWriter()
	w.ShortName = "xrf"
	paths, err := w.Write(ctx, meta, assemblies)
	if err != nil {
		return nil, err
	}
	log.Info("stacked elemental maps",
		zap.Strings("transitions", e.Transitions),
		zap.Int("projections", len(kept)))
	return &Summary{
		Located: located,
		Stacked: len(kept),
		Skipped: skipped,
		Written: paths,
	}, nil
}

func (e *XRF) loadTransition(ctx context.Context, tr string, recs []*projection.Record) ([]*stack.Frame, error) {
	dset := fmt.Sprintf("%s/%s/data", projection.XRFProcessed, tr)
	frames := make([]*stack.Frame, len(recs))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers())
	for i, rec := range recs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			vals, shape, err := e.load.floats(rec.Path, dset)
			if err != nil {
				e.logger().Warn("elemental map missing, skipping projection",
					zap.String("transition", tr),
					zap.String("path", rec.Path))
				return nil
			}
			vals, rows, cols, err := frameSlice(vals, shape)
			if err != nil {
				return fmt.Errorf("%s: %w", rec.Path, err)
			}
			frames[i] = &stack.Frame{
				Scan:  rec.Scan,
				Proj:  rec.Proj,
				Angle: rec.Angle,
				Rows:  rows,
				Cols:  cols,
				Real:  vals,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := frames[:0:0]
	for _, f := range frames {
		if f != nil {
			out = append(out, f)
		}
	}
	return out, nil
}
