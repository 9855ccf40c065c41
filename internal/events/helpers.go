package events

import (
	"encoding/json"
	"fmt"
)

// SetFileChangeData sets the Data field with FileChangeData in a type-safe way.
func (e *Event) SetFileChangeData(data FileChangeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert FileChangeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetFileChangeData retrieves FileChangeData from the Data field.
func (e *Event) GetFileChangeData() (*FileChangeData, error) {
	var data FileChangeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse FileChangeData: %w", err)
	}
	return &data, nil
}

// SetTaskRunData sets the Data field with TaskRunData in a type-safe way.
func (e *Event) SetTaskRunData(data TaskRunData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert TaskRunData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetTaskRunData retrieves TaskRunData from the Data field.
func (e *Event) GetTaskRunData() (*TaskRunData, error) {
	var data TaskRunData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse TaskRunData: %w", err)
	}
	return &data, nil
}

// SetTaskCompleteData sets the Data field with TaskCompleteData in a type-safe way.
func (e *Event) SetTaskCompleteData(data TaskCompleteData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert TaskCompleteData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetTaskCompleteData retrieves TaskCompleteData from the Data field.
func (e *Event) GetTaskCompleteData() (*TaskCompleteData, error) {
	var data TaskCompleteData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse TaskCompleteData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
