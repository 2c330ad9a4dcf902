package job

import (
	"context"
	"fmt"
	"os"

	"kiln/internal/content"
)

func (j *Job) applyStep(ctx context.Context, s *Step, c *content.Content) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch s.kind {
	case KindFetch:
		if j.engine.datastore == nil {
			return ErrNoDatastore
		}
		return j.engine.datastore.Retrieve(ctx, c, s.UID())
	case KindFetchFile:
		data, err := os.ReadFile(s.Path())
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		c.Update(data, map[string]any{content.MetaName: s.Filename()})
		return nil
	case KindFetchURL:
		return j.engine.fetchURL(ctx, s.URL(), c)
	case KindGenerate:
		gen, err := j.engine.registry.Generator(s.Name())
		if err != nil {
			return err
		}
		return gen.Generate(ctx, c, s.Arguments()...)
	case KindProcess:
		proc, err := j.engine.registry.Processor(s.Name())
		if err != nil {
			return err
		}
		return proc.Process(ctx, c, s.Arguments()...)
	}
	return fmt.Errorf("unknown step kind %d", s.kind)
}
