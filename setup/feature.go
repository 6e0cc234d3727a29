package setup

type (
	// Feature encapsulates custom setup.
	Feature interface {
		Install(*Builder) error
	}

	// FeatureFunc adapts a function to a Feature.
	FeatureFunc func(*Builder) error
)

func (f FeatureFunc) Install(setup *Builder) error {
	return f(setup)
}

// FeatureSet combines one or more Feature's into a single logical Feature.
func FeatureSet(features ...Feature) FeatureFunc {
	return func(setup *Builder) error {
		for _, feature := range features {
			if feature != nil {
				if err := feature.Install(setup); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
