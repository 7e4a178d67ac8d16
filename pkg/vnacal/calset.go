package vnacal

import (
	"fmt"
	"log"
)

// WriteCalSet записывает модель ошибок в набор калибровки name и активирует его.
// Анализатор не позволяет перезаписать члены существующего набора, поэтому набор
// с тем же именем сначала удаляется: после записи в каталоге ровно один набор name.
func WriteCalSet(a Analyzer, name string, model *ErrorModel, applyStimulus bool, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	if err := model.Validate(); err != nil {
		return err
	}

	sets, err := a.CalSets()
	if err != nil {
		return err
	}
	for _, cs := range sets {
		if cs.Name != name {
			continue
		}
		logger.Printf("удаление существующего набора калибровки %q (%s)", cs.Name, cs.GUID)
		if err := a.DeleteCalSet(cs.GUID); err != nil {
			return fmt.Errorf("ошибка удаления набора калибровки %q: %w", name, err)
		}
	}

	if err := a.CreateCalSet(name); err != nil {
		return fmt.Errorf("ошибка создания набора калибровки %q: %w", name, err)
	}
	if err := a.SelectCalSet(name); err != nil {
		return fmt.Errorf("ошибка выбора набора калибровки %q: %w", name, err)
	}
	for _, term := range ErrorTerms {
		id, _ := term.Coefficient()
		if err := a.WriteErrorTerm(id, model.Terms[term]); err != nil {
			return fmt.Errorf("ошибка записи члена %s (%s): %w", term, id, err)
		}
	}
	if err := a.ActivateCalSet(name, applyStimulus); err != nil {
		return fmt.Errorf("ошибка активации набора калибровки %q: %w", name, err)
	}
	logger.Printf("набор калибровки %q записан и активирован (%d точек)", name, len(model.Frequencies))
	return nil
}
